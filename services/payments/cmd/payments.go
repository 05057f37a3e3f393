package cmd

import (

	// pprof imports
	_ "net/http/pprof"

	rootcmd "github.com/brave-intl/acquiring-go/cmd"
	srvcmd "github.com/brave-intl/acquiring-go/services/cmd"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// setup the flags
	paymentsCmd.PersistentFlags().String("bank-server", "", "the issuing bank gateway address")
	rootcmd.Must(viper.BindPFlag("bank-server", paymentsCmd.PersistentFlags().Lookup("bank-server")))
	rootcmd.Must(viper.BindEnv("bank-server", "BANK_SERVER"))

	paymentsCmd.PersistentFlags().String("bank-token", "", "the issuing bank gateway access token")
	rootcmd.Must(viper.BindPFlag("bank-token", paymentsCmd.PersistentFlags().Lookup("bank-token")))
	rootcmd.Must(viper.BindEnv("bank-token", "BANK_TOKEN"))

	paymentsCmd.PersistentFlags().String("form-base-url", "http://localhost:3333",
		"the base url used to build hosted payment form links")
	rootcmd.Must(viper.BindPFlag("form-base-url", paymentsCmd.PersistentFlags().Lookup("form-base-url")))
	rootcmd.Must(viper.BindEnv("form-base-url", "PAYMENT_FORM_BASE"))

	paymentsCmd.PersistentFlags().String("kafka-brokers", "",
		"the kafka broker addresses for status events")
	rootcmd.Must(viper.BindPFlag("kafka-brokers", paymentsCmd.PersistentFlags().Lookup("kafka-brokers")))
	rootcmd.Must(viper.BindEnv("kafka-brokers", "KAFKA_BROKERS"))

	// add rest command
	paymentsCmd.AddCommand(restCmd)

	// add this command as a serve subcommand
	srvcmd.ServeCmd.AddCommand(paymentsCmd)
}

var (
	paymentsCmd = &cobra.Command{
		Use:   "payments",
		Short: "provides payments micro-service entrypoint",
	}

	restCmd = &cobra.Command{
		Use:   "rest",
		Short: "provides REST api services",
		Run:   RestRun,
	}
)
