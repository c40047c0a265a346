package seeder

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/macina-app/macina/internal/database"
	"github.com/macina-app/macina/internal/entity"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder loads reference data for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Reference seeds mills, carriers, clients and products if they are missing.
func (s *Seeder) Reference(ctx context.Context) error {
	mills := []entity.Mill{
		{Name: "Molino Rossi", PickupAddress: "Via dei Mulini 12, Altamura", Email: "ordini@molinorossi.example"},
		{Name: "Molino Bianchi", PickupAddress: "Strada Provinciale 4, Foggia", Email: "ordini@molinobianchi.example"},
	}
	for _, sample := range mills {
		mill := sample
		if _, err := s.db.NewInsert().Model(&mill).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
	}

	carriers := []entity.Carrier{
		{Name: "Trasporti Sud", Phone: "+39 080 000 0001"},
		{Name: "Autotrasporti Leone", Phone: "+39 080 000 0002"},
	}
	for _, sample := range carriers {
		carrier := sample
		if _, err := s.db.NewInsert().Model(&carrier).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
	}

	clients := []entity.Client{
		{Name: "Panificio Centrale", DeliveryAddress: "Corso Umberto 3, Bari", DeferredPayment: true},
		{Name: "Forno Marino", DeliveryAddress: "Via Garibaldi 18, Taranto"},
	}
	for _, sample := range clients {
		client := sample
		if _, err := s.db.NewInsert().Model(&client).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
	}

	products := []entity.Product{
		{Name: "Farina 00", MillID: 1, Category: "soft wheat", CommissionType: entity.CommissionPercentage, CommissionValue: decimal.NewFromFloat(1.5)},
		{Name: "Semola rimacinata", MillID: 2, Category: "durum wheat", CommissionType: entity.CommissionFixed, CommissionValue: decimal.NewFromFloat(0.40)},
	}
	for _, sample := range products {
		product := sample
		if _, err := s.db.NewInsert().Model(&product).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded reference data",
			zap.Int("mills", len(mills)),
			zap.Int("carriers", len(carriers)),
			zap.Int("clients", len(clients)),
			zap.Int("products", len(products)),
		)
	}
	return nil
}
