package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftmesh/weft/internal/domain"
	"github.com/weftmesh/weft/internal/infra/identity"
)

type entityFile = identity.EntityData[map[string]any]

func init() {
	rootCmd.AddCommand(idCmd)
	idCmd.AddCommand(idShowCmd)
	idCmd.AddCommand(idSignCmd)
	idCmd.AddCommand(idVerifyCmd)
	idCmd.AddCommand(idHistoryCmd)

	idSignCmd.Flags().String("key", "", "hex-encoded 32-byte secp256k1 private key")
}

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Inspect and manage signed identity documents",
}

func loadEntityFile(path string) (entityFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return entityFile{}, err
	}
	var data entityFile
	if err := json.Unmarshal(b, &data); err != nil {
		return entityFile{}, fmt.Errorf("id: decode %s: %w", path, err)
	}
	return data, nil
}

func saveEntityFile(path string, data entityFile) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

var idShowCmd = &cobra.Command{
	Use:   "show FILE",
	Short: "Validate and print an identity document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := loadEntityFile(args[0])
		if err != nil {
			return err
		}
		ent, err := identity.FromData(data)
		if err != nil {
			return fmt.Errorf("id show: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "name:        %s\n", ent.Name())
		fmt.Fprintf(cmd.OutOrStdout(), "revision:    %d\n", ent.Revision())
		fmt.Fprintf(cmd.OutOrStdout(), "hash:        %s\n", ent.Hash())
		fmt.Fprintf(cmd.OutOrStdout(), "parent_hash: %s\n", ent.ParentHash())
		fmt.Fprintf(cmd.OutOrStdout(), "keys:        %d\n", len(ent.Keys()))
		fmt.Fprintf(cmd.OutOrStdout(), "signatures:  %d\n", len(data.Signatures))
		return nil
	},
}

var idSignCmd = &cobra.Command{
	Use:   "sign FILE",
	Short: "Add an owned-key signature to an identity document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyHex, _ := cmd.Flags().GetString("key")
		if keyHex == "" {
			return fmt.Errorf("id sign: --key is required")
		}
		raw, err := hex.DecodeString(keyHex)
		if err != nil {
			return fmt.Errorf("id sign: invalid --key: %w", err)
		}
		sk := domain.PrivateKeyFromBytes(raw)

		data, err := loadEntityFile(args[0])
		if err != nil {
			return err
		}
		if err := identity.Sign(&data, sk, domain.OwnedKeySignatory()); err != nil {
			return fmt.Errorf("id sign: %w", err)
		}
		return saveEntityFile(args[0], data)
	},
}

var idVerifyCmd = &cobra.Command{
	Use:   "verify FILE",
	Short: "Check an identity document's full signature coverage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := loadEntityFile(args[0])
		if err != nil {
			return err
		}
		ent, err := identity.FromData(data)
		if err != nil {
			return fmt.Errorf("id verify: %w", err)
		}
		resolver := identity.MapResolver[map[string]any]{}
		if err := identity.CheckValidity(ent, resolver); err != nil {
			return fmt.Errorf("id verify: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "valid")
		return nil
	},
}

var idHistoryCmd = &cobra.Command{
	Use:   "history FILE...",
	Short: "Verify a revision chain, newest file first",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver := identity.MapResolver[map[string]any]{}
		verifier := identity.NewHistoryVerifier(resolver)

		entities := make([]*identity.Entity[map[string]any], 0, len(args))
		for _, path := range args {
			data, err := loadEntityFile(path)
			if err != nil {
				return err
			}
			ent, err := identity.FromData(data)
			if err != nil {
				return fmt.Errorf("id history: %s: %w", path, err)
			}
			entities = append(entities, ent)
		}

		if err := verifier.CheckAll(identity.Entities(entities)); err != nil {
			return fmt.Errorf("id history: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "history valid")
		return nil
	},
}
