package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/solhub/solhub.go/db/models"
)

/* Since this init will reflect the latest model fields when run on fresh db
make sure that when you add/remove columns in subsequent migrations IfNotExists/IfExists is used
otherwise it's going to result in errors.
*/
func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {

		if _, err := db.NewCreateTable().Model((*models.Invoice)(nil)).Exec(ctx); err != nil {
			return err
		}
		// reference is the O(1) lookup path for webhook ingestion and the
		// uniqueness guarantee against cross-invoice payment matching
		if _, err := db.NewCreateIndex().Model((*models.Invoice)(nil)).
			Index("invoices_reference_idx").Unique().Column("reference").Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateIndex().Model((*models.Invoice)(nil)).
			Index("invoices_state_idx").Column("state").Exec(ctx); err != nil {
			return err
		}

		return nil
	}, nil)
}
