package cmd

import (
	"context"
	"net/http"
	"time"

	// pprof imports
	_ "net/http/pprof"

	rootcmd "github.com/brave-intl/acquiring-go/cmd"
	appctx "github.com/brave-intl/acquiring-go/libs/context"
	"github.com/brave-intl/acquiring-go/libs/middleware"
	"github.com/brave-intl/acquiring-go/services/cmd"
	"github.com/brave-intl/acquiring-go/services/payments"
	sentry "github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RestRun - Main entrypoint of the REST subcommand
// This function takes a cobra command and starts up the
// payments rest microservice.
func RestRun(command *cobra.Command, args []string) {
	ctx := command.Context()
	logger, err := appctx.GetLogger(ctx)
	rootcmd.Must(err)
	// add profiling flag to enable profiling routes
	if viper.GetString("pprof-enabled") != "" {
		// pprof attaches routes to default serve mux
		// host:6061/debug/pprof/
		go func() {
			logger.Error().Err(http.ListenAndServe(":6061", http.DefaultServeMux))
		}()
	}

	// the bank gateway and form base come in through flags or env
	ctx = context.WithValue(ctx, appctx.BankServerCTXKey, viper.GetString("bank-server"))
	ctx = context.WithValue(ctx, appctx.BankAccessTokenCTXKey, viper.GetString("bank-token"))
	ctx = context.WithValue(ctx, appctx.PaymentFormBaseCTXKey, viper.GetString("form-base-url"))
	if brokers := viper.GetString("kafka-brokers"); brokers != "" {
		ctx = context.WithValue(ctx, appctx.KafkaBrokersCTXKey, brokers)
	}

	datastore, err := payments.NewPostgres()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize datastore")
	}

	// without a configured bank server the service runs against the
	// simulated issuer, which is what local and CI environments want
	var bank payments.BankClient
	if bankServer := viper.GetString("bank-server"); bankServer != "" {
		httpBank, err := payments.NewHTTPBankClient(bankServer, viper.GetString("bank-token"))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize bank client")
		}
		bank = payments.NewResilientBankClient(httpBank, 0)
	}

	// setup the service now
	s, err := payments.InitService(ctx, datastore, nil, bank)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initalize payments service")
	}

	// do rest endpoints
	r := cmd.SetupRouter(ctx)

	// merchant api, signed request envelopes
	r.Mount("/v1/payments", payments.Router(s))
	// hosted payment form, served to cardholders
	r.Mount("/form", payments.FormRouter(s))

	// expired payment sweeps, webhook deliveries and stuck payment
	// reconciliation all run off the job workers
	err = cmd.SetupJobWorkers(command.Context(), s.Jobs())
	if err != nil {
		logger.Error().Err(err).Msg("failed to setup job workers")
	}

	// make sure exceptions go to sentry
	defer sentry.Flush(time.Second * 2)

	go func() {
		err := http.ListenAndServe(":9090", middleware.Metrics())
		if err != nil {
			sentry.CaptureException(err)
			logger.Panic().Err(err).Msg("metrics HTTP server start failed!")
		}
	}()

	// setup server, and run
	srv := http.Server{
		Addr:         viper.GetString("address"),
		Handler:      chi.ServerBaseContext(ctx, r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	if err = srv.ListenAndServe(); err != nil {
		sentry.CaptureException(err)
		logger.Fatal().Err(err).Msg("HTTP server start failed!")
	}
}
