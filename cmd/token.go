package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/api"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API bearer token for a user",
	Run: func(cmd *cobra.Command, _ []string) {
		mintToken(cmd)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringP("user", "u", "", "user id the token is issued for")
	tokenCmd.MarkFlagRequired("user")
}

func mintToken(cmd *cobra.Command) {
	log, config := setup("token")
	defer log.Sync()

	signingKey, err := loadSigningKey(config.Server)
	if err != nil {
		log.Fatal("loading signing key", zap.Error(err))
	}

	tokens, err := api.NewTokens(signingKey)
	if err != nil {
		log.Fatal("creating token signer", zap.Error(err))
	}

	user, _ := cmd.Flags().GetString("user")
	token, err := tokens.Sign(user)
	if err != nil {
		log.Fatal("signing token", zap.Error(err))
	}

	fmt.Println(token)
}
