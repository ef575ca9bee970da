package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"hublink/pkg/config"
	"hublink/pkg/httpsig"
	"hublink/pkg/identity"
)

func keygenCmd() *cobra.Command {
	var (
		instanceID string
		save       bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing identity for this instance",
		Long: `Generate a new Ed25519 key for this instance and print the seed and
public key in the form the hub and the config file expect.`,
		Example: `  hublink keygen --instance https://blog.example
  hublink keygen --instance https://blog.example --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if instanceID == "" {
				instanceID = cfg.Identity.InstanceID
			}
			if instanceID == "" {
				return fmt.Errorf("instance id is required (--instance)")
			}

			id, seed, err := identity.Generate(instanceID)
			if err != nil {
				return fmt.Errorf("failed to generate identity: %w", err)
			}

			out := struct {
				InstanceID         string `json:"instance_id"`
				KeyID              string `json:"key_id"`
				PrivateKeySeed     string `json:"private_key_seed"`
				PublicKeyMultibase string `json:"public_key_multibase"`
				DID                string `json:"did"`
			}{id.InstanceID(), id.KeyID(), seed, id.PublicKeyMultibase(), id.DIDKey()}

			if save {
				cfg.Identity = config.IdentityConfig{
					InstanceID:         id.InstanceID(),
					PrivateKeySeed:     seed,
					PublicKeyMultibase: id.PublicKeyMultibase(),
				}
				path := identitySavePath()
				if err := cfg.Save(path); err != nil {
					return err
				}
				fmt.Fprintln(os.Stderr, mutedStyle.Render("Saved identity to "+path))
			}

			return printOutput(out, func() {
				fmt.Println(createPanel("INSTANCE IDENTITY", "🔑", renderFields([]field{
					{"Instance", out.InstanceID, valueStyle},
					{"Key ID", out.KeyID, valueStyle},
					{"Public Key", out.PublicKeyMultibase, accentValueStyle},
					{"DID", out.DID, valueStyle},
					{"Private Seed", out.PrivateKeySeed, warningValueStyle},
				}), 0))
				fmt.Println(mutedStyle.Render("Keep the private seed secret. Publish the public key on your instance."))
			})
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "instance identifier (usually its base URL)")
	cmd.Flags().BoolVar(&save, "save", false, "write the identity into the config file")

	return cmd
}

// identitySavePath is the file keygen --save writes: the --config file in its
// own format, or the default JSON config.
func identitySavePath() string {
	if configFile != "" {
		return configFile
	}
	return config.GetConfigPath()
}

func signCmd() *cobra.Command {
	var body string

	cmd := &cobra.Command{
		Use:   "sign METHOD PATH",
		Short: "Show the headers hublink would send for a request",
		Args:  cobra.ExactArgs(2),
		Example: `  hublink sign GET /trp/my/memberships
  hublink sign POST /trp/join --body '{"ringSlug":"demo"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			var payload any
			if body != "" {
				if !json.Valid([]byte(body)) {
					return fmt.Errorf("--body is not valid JSON")
				}
				payload = []byte(body)
			}

			req, signed, err := a.client.Prepare(context.Background(), args[0], args[1], payload)
			if err != nil {
				return err
			}

			out := struct {
				Method  string            `json:"method"`
				URL     string            `json:"url"`
				Signed  bool              `json:"signed"`
				Headers map[string]string `json:"headers"`
			}{req.Method, req.URL.String(), signed, make(map[string]string)}
			for name := range req.Header {
				out.Headers[name] = req.Header.Get(name)
			}

			return printOutput(out, func() {
				names := make([]string, 0, len(out.Headers))
				for name := range out.Headers {
					names = append(names, name)
				}
				sort.Strings(names)

				t := newTable("HEADER", "VALUE")
				for _, name := range names {
					t.Row(name, out.Headers[name])
				}
				signedStyle := mutedStyle
				if signed {
					signedStyle = accentValueStyle
				}
				title := fmt.Sprintf("%s %s", out.Method, out.URL)
				fmt.Println(createPanel(title, "✍", signedStyle.Render(fmt.Sprintf("signed: %t", signed))+"\n"+t.Render(), 0))
			})
		},
	}

	cmd.Flags().StringVar(&body, "body", "", "JSON request body")
	return cmd
}

func verifyCmd() *cobra.Command {
	var (
		publicKey     string
		method        string
		target        string
		headerArgs    []string
		authorization string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a Signature Authorization header",
		Example: `  hublink verify --public-key z6Mk... --method POST --target /trp/join \
    --header "Host: hub.example" --header "Date: Tue, 07 May 2024 10:00:00 GMT" \
    --header "Digest: sha-256=..." --authorization 'Signature keyId="..."'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if publicKey == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				publicKey = cfg.Identity.PublicKeyMultibase
			}
			if publicKey == "" {
				return fmt.Errorf("--public-key is required when no identity is configured")
			}
			pub, err := identity.DecodePublicKey(publicKey)
			if err != nil {
				return err
			}

			headers := make(http.Header)
			for _, h := range headerArgs {
				name, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q (expected Name: value)", h)
				}
				headers.Set(strings.TrimSpace(name), strings.TrimSpace(value))
			}

			if err := httpsig.Verify(pub, method, target, headers, authorization); err != nil {
				fmt.Println(dangerValueStyle.Render("✗ signature invalid"))
				return err
			}
			fmt.Println(accentValueStyle.Render("✓ signature valid"))
			return nil
		},
	}

	cmd.Flags().StringVar(&publicKey, "public-key", "", "multibase public key (defaults to the configured identity)")
	cmd.Flags().StringVar(&method, "method", http.MethodGet, "request method")
	cmd.Flags().StringVar(&target, "target", "", "request path and query")
	cmd.Flags().StringArrayVar(&headerArgs, "header", nil, "request header as 'Name: value' (repeatable)")
	cmd.Flags().StringVar(&authorization, "authorization", "", "Authorization header value")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("authorization")

	return cmd
}
