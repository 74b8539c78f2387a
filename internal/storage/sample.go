package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Sample dataset shape. Values are deterministic so report output is stable.
var (
	sampleStates = []struct {
		Name      string
		Districts []string
		Weight    float64
	}{
		{"Karnataka", []string{"Bengaluru Urban", "Mysuru"}, 9},
		{"Maharashtra", []string{"Pune", "Mumbai"}, 10},
		{"Tamil Nadu", []string{"Chennai", "Coimbatore"}, 7},
		{"Goa", []string{"North Goa", "South Goa"}, 1},
	}
	sampleYears  = []int{2021, 2022}
	sampleTypes  = []string{"Peer-to-peer payments", "Merchant payments", "Recharge & bill payments"}
	sampleBrands = []string{"Xiaomi", "Samsung", "Vivo"}
)

// LoadSample fills an empty migrated SQLite database with a small synthetic
// dataset. It refuses to run when aggregated_transaction already has rows.
func LoadSample(ctx context.Context, db *sql.DB) (int, error) {
	var existing int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM aggregated_transaction").Scan(&existing); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	if existing > 0 {
		return 0, fmt.Errorf("dataset already has %d transaction rows", existing)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	n := 0
	insert := func(table string, cols []string, vals ...any) error {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks)
		if _, err := tx.ExecContext(ctx, stmt, vals...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
		n++
		return nil
	}

	for si, st := range sampleStates {
		for _, year := range sampleYears {
			growth := float64(year-2020) * 1.5
			for quarter := 1; quarter <= 4; quarter++ {
				seasonal := 1 + 0.1*float64(quarter)

				types := sampleTypes
				if st.Name == "Goa" {
					types = sampleTypes[:2]
				}
				for ti, tt := range types {
					amount := st.Weight * growth * seasonal * float64(1000000*(3-ti))
					if err := insert("aggregated_transaction",
						[]string{"state", "year", "quarter", "transaction_type", "transaction_count", "transaction_amount"},
						st.Name, year, quarter, tt, int64(amount/500), amount); err != nil {
						return 0, err
					}
				}

				for bi, brand := range sampleBrands {
					count := int64(st.Weight*1000) * int64(len(sampleBrands)-((bi+si)%len(sampleBrands)))
					users := int64(st.Weight * 100000)
					opens := users * 2
					if st.Name == "Goa" {
						opens = users / 4
					}
					if err := insert("aggregated_user",
						[]string{"state", "year", "quarter", "brand", "brand_count", "brand_percentage", "registered_users", "app_opens"},
						st.Name, year, quarter, brand, count, 0.0, users, opens); err != nil {
						return 0, err
					}
				}

				for di, district := range st.Districts {
					users := int64(st.Weight*20000) / int64(di+1)
					opens := users * int64(quarter+1)
					insAmount := st.Weight * growth * float64(50000*(di+1))
					if district == "North Goa" {
						users = 500
						insAmount = 400000
					}
					if err := insert("map_user",
						[]string{"state", "district", "year", "quarter", "registered_users", "app_opens"},
						st.Name, district, year, quarter, users, opens); err != nil {
						return 0, err
					}
					if err := insert("map_insurance",
						[]string{"state", "district", "year", "quarter", "count", "amount"},
						st.Name, district, year, quarter, int64(insAmount/2000), insAmount); err != nil {
						return 0, err
					}
					if err := insert("map_map",
						[]string{"state", "district", "year", "quarter", "count", "amount"},
						st.Name, district, year, quarter, int64(st.Weight*5000)/int64(di+1), st.Weight*growth*1e6); err != nil {
						return 0, err
					}
				}

				pincode := fmt.Sprintf("%d%05d", 4+si, 1000+quarter)
				if err := insert("top_map",
					[]string{"state", "year", "quarter", "pincode", "count", "amount"},
					st.Name, year, quarter, pincode, int64(st.Weight*300), st.Weight*growth*250000); err != nil {
					return 0, err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}
