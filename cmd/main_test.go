package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstgnz/paykit/infra/config"
	"github.com/mstgnz/paykit/provider"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	t.Setenv("BANK_TRANSFER_BANK_NAME", "Test Bank")

	cfg := &config.AppConfig{
		Port:            "0",
		Environment:     "test",
		DatabaseDriver:  "sqlite3",
		DatabaseDSN:     filepath.Join(t.TempDir(), "paykit.db"),
		LoggingLevel:    "error",
		DefaultProvider: provider.BankTransfer,
	}
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "providers", "confirm-transfer"} {
		assert.True(t, names[want], want)
	}
}

func TestLoadConfig(t *testing.T) {
	saved := envFiles
	t.Cleanup(func() {
		envFiles = saved
		config.ResetAppConfig()
	})
	envFiles = []string{filepath.Join(t.TempDir(), "missing.env")}

	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, "9999", cfg.Port)
	})

	t.Run("invalid port", func(t *testing.T) {
		t.Setenv("APP_PORT", "not-a-port")
		_, err := loadConfig()
		assert.Error(t, err)
	})
}

func TestNewApp_HealthChecks(t *testing.T) {
	a := newTestApp(t)

	checks := a.healthChecks()
	assert.Contains(t, checks, "database")
	assert.NotContains(t, checks, "redis")
	assert.NotContains(t, checks, "opensearch")
	assert.Nil(t, a.webhookSearch())
}

func TestNewApp_BadDatabaseDriver(t *testing.T) {
	_, err := newApp(context.Background(), &config.AppConfig{
		DatabaseDriver: "oracle",
		DatabaseDSN:    "x",
		LoggingLevel:   "error",
	})
	assert.Error(t, err)
}

func TestNewHandler_Health(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(newHandler(a, nil))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestPrintProviders(t *testing.T) {
	a := newTestApp(t)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, printProviders(cmd, a))
	assert.Contains(t, out.String(), "default: bank_transfer")
	assert.Contains(t, out.String(), "bank_transfer  configured\n")
	assert.Contains(t, out.String(), "apple_iap")
}

func newConfirmCommand(t *testing.T, admin string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.Flags().String("admin", "", "")
	cmd.Flags().String("notes", "", "")
	require.NoError(t, cmd.Flags().Set("admin", admin))
	require.NoError(t, cmd.Flags().Set("notes", "seen on statement"))
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func TestConfirmTransfer(t *testing.T) {
	a := newTestApp(t)

	reg, err := a.manager.RegisterUserWithSubscription(context.Background(), provider.RegistrationRequest{
		User:          provider.User{ID: 7, Email: "user@example.com"},
		PlanID:        2,
		PaymentMethod: provider.BankTransfer,
	})
	require.NoError(t, err)
	require.Equal(t, provider.StatusPending, reg.Payment.Status)

	cmd, out := newConfirmCommand(t, "ops-1")
	require.NoError(t, confirmTransfer(cmd, a, reg.Payment.ReferenceNumber))

	var result provider.PaymentResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, provider.StatusCompleted, result.Status)
}

func TestConfirmTransfer_UnknownTransaction(t *testing.T) {
	a := newTestApp(t)

	cmd, out := newConfirmCommand(t, "ops-1")
	err := confirmTransfer(cmd, a, "bt_MISSING")
	require.Error(t, err)

	perr, ok := provider.AsPaymentError(err)
	require.True(t, ok)
	assert.Equal(t, provider.CodePaymentNotFound, perr.Code)
	assert.Empty(t, out.String())
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	assert.NoError(t, serve(ctx, server))
}
