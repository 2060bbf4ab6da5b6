package auth

import "github.com/spf13/cobra"

var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Token commands",
	Long:  "Issue and inspect learner bearer tokens for development",
}

func init() {
	// Commands added in token.go
}
