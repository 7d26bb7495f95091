package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/utafrali/siterank/internal/auth"
	"github.com/utafrali/siterank/internal/domain"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	UserID   string
	Username string
	Role     string
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Long: `Sign an access token with the configured JWT_SECRET.

Only available when ENVIRONMENT=development.

Examples:
  siterankctl token --username alice --role admin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if !cfg.IsDevelopment() {
				return NewExitError(ExitCommandError, "token minting is only available in development")
			}
			if !domain.IsValidRole(opts.Role) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid role %q: must be one of %v", opts.Role, domain.ValidRoles()))
			}

			userID := opts.UserID
			if userID == "" {
				userID = opts.Username
			}

			token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessExpiry).
				GenerateAccessToken(userID, opts.Username, opts.Role)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to sign token", err)
			}

			data := map[string]string{"access_token": token, "username": opts.Username, "role": opts.Role}
			return opts.formatter(cmd).Render(data, [][]string{{token}})
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user-id", "", "user id claim (defaults to --username)")
	cmd.Flags().StringVar(&opts.Username, "username", "", "username claim (required)")
	_ = cmd.MarkFlagRequired("username")
	cmd.Flags().StringVar(&opts.Role, "role", domain.RoleUser, "role claim (user|admin)")

	return cmd
}
