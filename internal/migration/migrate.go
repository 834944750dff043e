package migration

import (
	billingdomain "github.com/parcelcraft/shipledger/internal/billing/domain"
	cycledomain "github.com/parcelcraft/shipledger/internal/billingcycle/domain"
	bulkopdomain "github.com/parcelcraft/shipledger/internal/bulkop/domain"
	disputedomain "github.com/parcelcraft/shipledger/internal/dispute/domain"
	paymentdomain "github.com/parcelcraft/shipledger/internal/payment/domain"
	shipmentdomain "github.com/parcelcraft/shipledger/internal/shipment/domain"
	tariffdomain "github.com/parcelcraft/shipledger/internal/tariff/domain"
	walletdomain "github.com/parcelcraft/shipledger/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates every table the services use.
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("running schema migration")
	return db.AutoMigrate(
		&shipmentdomain.Shipment{},
		&tariffdomain.CourierTariff{},
		&tariffdomain.ZoneRate{},
		&walletdomain.Wallet{},
		&walletdomain.Transaction{},
		&billingdomain.Billing{},
		&disputedomain.WeightDispute{},
		&cycledomain.BillingCycle{},
		&bulkopdomain.BulkOperation{},
		&paymentdomain.WalletTopup{},
	)
}

// Module runs the migration on startup.
var Module = fx.Module("migration",
	fx.Invoke(AutoMigrate),
)
