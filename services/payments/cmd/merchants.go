package cmd

import (
	"crypto/rand"
	"encoding/base64"

	rootcmd "github.com/brave-intl/acquiring-go/cmd"
	cmdutils "github.com/brave-intl/acquiring-go/libs/cmd"
	appctx "github.com/brave-intl/acquiring-go/libs/context"
	"github.com/brave-intl/acquiring-go/libs/logging"
	"github.com/brave-intl/acquiring-go/services/payments"
	"github.com/lib/pq"
	"github.com/spf13/cobra"
)

var (
	// MerchantsCmd is the subcommand for merchant credential management
	MerchantsCmd = &cobra.Command{
		Use:   "merchants",
		Short: "merchant credential management",
	}
	// MerchantsCreateCmd provisions a merchant with a fresh signing secret
	MerchantsCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "create or replace a merchant",
		Run:   rootcmd.Perform("merchant creation", RunMerchantsCreate),
	}
)

func init() {
	MerchantsCmd.AddCommand(
		MerchantsCreateCmd,
	)
	rootcmd.RootCmd.AddCommand(
		MerchantsCmd,
	)

	createBuilder := cmdutils.NewFlagBuilder(MerchantsCreateCmd)

	createBuilder.Flag().String("merchant-key", "",
		"the merchant login used on signed requests").
		Bind("merchant-key").
		Require()

	createBuilder.Flag().String("secret", "",
		"the shared signing secret, generated when empty").
		Bind("secret")

	createBuilder.Flag().StringSlice("currencies", []string{"RUB"},
		"the currency codes the merchant may charge in").
		Bind("currencies")

	createBuilder.Flag().Bool("blocked", false,
		"provision the merchant in a blocked state").
		Bind("blocked")
}

// RunMerchantsCreate runs the merchant create command
func RunMerchantsCreate(command *cobra.Command, args []string) error {
	merchantKey, err := command.Flags().GetString("merchant-key")
	if err != nil {
		return err
	}
	secret, err := command.Flags().GetString("secret")
	if err != nil {
		return err
	}
	currencies, err := command.Flags().GetStringSlice("currencies")
	if err != nil {
		return err
	}
	blocked, err := command.Flags().GetBool("blocked")
	if err != nil {
		return err
	}

	ctx := command.Context()
	logger, lerr := appctx.GetLogger(ctx)
	if lerr != nil {
		_, logger = logging.SetupLogger(ctx)
	}

	if secret == "" {
		secret, err = randomSecret(24)
		if err != nil {
			return err
		}
	}

	datastore, err := payments.NewPostgres()
	if err != nil {
		return err
	}

	merchant := &payments.Merchant{
		MerchantKey:         merchantKey,
		Secret:              secret,
		Active:              !blocked,
		SupportedCurrencies: pq.StringArray(currencies),
	}
	if err := datastore.UpsertMerchant(ctx, merchant); err != nil {
		return err
	}

	logger.Info().
		Str("merchantKey", merchantKey).
		Str("secret", secret).
		Bool("active", merchant.Active).
		Msg("merchant provisioned, hand the secret to the merchant over a secure channel")
	return nil
}

func randomSecret(n int) (string, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	// Note that err == nil only if we read len(b) bytes.
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
