package db

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shinyyama/demart-backend/internal/config"
	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "host and port",
			cfg:  config.Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: "3306", DBName: "demart"},
			want: "u:p@tcp(db:3306)/demart?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		},
		{
			name: "explicit tcp",
			cfg:  config.Config{DBUser: "u", DBPassword: "p", DBHost: "tcp(10.0.0.1:3307)", DBName: "demart"},
			want: "u:p@tcp(10.0.0.1:3307)/demart?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		},
		{
			name: "socket path",
			cfg:  config.Config{DBUser: "u", DBPassword: "p", DBHost: "/var/run/mysqld.sock", DBName: "demart"},
			want: "u:p@unix(/var/run/mysqld.sock)/demart?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		},
		{
			name: "cloud sql",
			cfg:  config.Config{DBUser: "u", DBPassword: "p", DBHost: "ignored", InstanceConnectionName: "proj:region:inst", DBName: "demart"},
			want: "u:p@unix(/cloudsql/proj:region:inst)/demart?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildDSN(&tt.cfg))
		})
	}
}

func TestWithTransactionRollsBack(t *testing.T) {
	conn, err := OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, Migrate(conn))
	txm := NewTxManager(conn)
	ctx := context.Background()

	boom := errors.New("boom")
	err = txm.WithTransaction(ctx, func(ctx context.Context) error {
		p := &model.Product{SellerUID: "s", Title: "t", Price: decimal.NewFromInt(1), Currency: "CNY", Status: model.ProductStatusActive}
		if err := Conn(ctx, conn).Create(p).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&model.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWithTransactionNests(t *testing.T) {
	conn, err := OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, Migrate(conn))
	txm := NewTxManager(conn)
	ctx := context.Background()

	err = txm.WithTransaction(ctx, func(ctx context.Context) error {
		return txm.WithTransaction(ctx, func(ctx context.Context) error {
			a := &model.Address{UserUID: "u", Recipient: "r", Line1: "l"}
			return Conn(ctx, conn).Create(a).Error
		})
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, conn.Model(&model.Address{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
