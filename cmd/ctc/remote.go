package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/loomworks/ctc/pkg/client"
	"github.com/loomworks/ctc/pkg/config"
	"github.com/loomworks/ctc/pkg/ct"
	"github.com/loomworks/ctc/pkg/observability"
	"github.com/loomworks/ctc/pkg/reconcile"
	"github.com/loomworks/ctc/pkg/store"
)

// minServerVersion is the oldest Apstra release the policy endpoints
// used here are known to work against.
const minServerVersion = "4.1.0"

// newAPIClient loads configuration, installs the configured logger as
// the process default, and returns an authenticated client.
func newAPIClient(ctx context.Context, stderr io.Writer) (*client.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.RequireAPI(); err != nil {
		return nil, nil, err
	}
	slog.SetDefault(cfg.NewLogger(stderr))

	c, err := client.New(client.Options{
		BaseURL:            cfg.APIURL,
		AuthToken:          cfg.AuthToken,
		VerifyCertificates: bool(cfg.VerifyCertificates),
		Timeout:            cfg.Timeout,
		RequestsPerSecond:  cfg.APIRate,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.AuthToken == "" {
		if err := c.Login(ctx, cfg.Username, cfg.Password); err != nil {
			return nil, nil, err
		}
	}
	return c, cfg, nil
}

// newProvider initializes telemetry. It is enabled only when an OTLP
// endpoint is configured; any init failure degrades to a disabled
// provider so CLI commands still run.
func newProvider(ctx context.Context, cfg *config.Config) *observability.Provider {
	oc := observability.DefaultConfig()
	oc.ServiceVersion = appVersion
	oc.Enabled = cfg.OTLPEndpoint != ""
	oc.Insecure = true
	if cfg.OTLPEndpoint != "" {
		oc.OTLPEndpoint = cfg.OTLPEndpoint
	}
	p, err := observability.New(ctx, oc)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
		p, _ = observability.New(ctx, &observability.Config{Enabled: false})
	}
	return p
}

// saveSnapshot records the blueprint's current export of tpl in the
// local snapshot database. Failures are reported but never fatal: the
// remote operation already succeeded.
func saveSnapshot(ctx context.Context, api *client.Client, cfg *config.Config, blueprintID string, tpl *ct.Template, stderr io.Writer) {
	export, err := api.ExportPolicies(ctx, blueprintID, tpl.ID)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: snapshot export failed: %v\n", err)
		return
	}
	snap, err := store.NewSnapshot(blueprintID, tpl, export)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: snapshot build failed: %v\n", err)
		return
	}
	db, err := store.Open(cfg.SnapshotDB)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: %v\n", err)
		return
	}
	defer db.Close()
	st, err := store.NewSnapshotStore(db)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: %v\n", err)
		return
	}
	if err := st.Save(ctx, snap); err != nil {
		fmt.Fprintf(stderr, "Warning: snapshot save failed: %v\n", err)
		return
	}
	fmt.Fprintf(stderr, "Snapshot saved to %s (hash %s)\n", cfg.SnapshotDB, shortHash(snap.CanonicalHash))
}

// newReconciler wires a client into the reconciler with the default
// builder and logger.
func newReconciler(api *client.Client) *reconcile.Reconciler {
	return reconcile.New(api)
}
