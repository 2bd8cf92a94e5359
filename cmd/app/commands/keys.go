package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	keysDomain "github.com/allisson/provenance/internal/keys/domain"
	keysUseCase "github.com/allisson/provenance/internal/keys/usecase"
)

// KeyManager is the key lifecycle surface used by the key commands.
type KeyManager interface {
	GenerateKey(
		ctx context.Context,
		id string,
		keyType keysDomain.KeyType,
		purpose string,
		validityDays int,
		opts ...keysUseCase.GenerateOption,
	) (keysDomain.KeyMetadata, error)
	Activate(ctx context.Context, id string) (keysDomain.KeyMetadata, error)
	Rotate(ctx context.Context, oldID, newID string) (keysDomain.KeyMetadata, error)
	Retire(ctx context.Context, id string) (keysDomain.KeyMetadata, error)
	Revoke(ctx context.Context, id string) (keysDomain.KeyMetadata, error)
	PurgeRetired(ctx context.Context) ([]string, error)
	List(filter keysDomain.ListFilter) []keysDomain.KeyMetadata
	PublicKeys() []keysDomain.PublicKey
}

// GenerateKeyInput holds the flags of generate-key.
type GenerateKeyInput struct {
	ID           string
	KeyType      string
	Purpose      string
	Algorithm    string
	ValidityDays int
	Pending      bool
	ParentKeyID  string
	Format       string
}

// newKeyID names a generated key after its purpose.
func newKeyID(purpose string) string {
	return purpose + "-" + uuid.Must(uuid.NewV7()).String()
}

// RunGenerateKey creates a signing, encryption or master key. The key becomes active when
// its purpose has no active key of the same type, unless --pending is set.
func RunGenerateKey(
	ctx context.Context,
	manager KeyManager,
	logger *slog.Logger,
	writer io.Writer,
	in GenerateKeyInput,
) error {
	if err := validateFormat(in.Format); err != nil {
		return err
	}

	keyType := keysDomain.KeyType(in.KeyType)
	if !keyType.Valid() {
		return fmt.Errorf("invalid key type: %s (valid options: signing, encryption, master)", in.KeyType)
	}

	var opts []keysUseCase.GenerateOption
	if keyType == keysDomain.KeyTypeSigning {
		algorithm, err := keysDomain.ParseSigningAlgorithm(in.Algorithm)
		if err != nil {
			return err
		}
		opts = append(opts, keysUseCase.WithAlgorithm(algorithm))
	}
	if in.Pending {
		opts = append(opts, keysUseCase.AsPending())
	}
	if in.ParentKeyID != "" {
		opts = append(opts, keysUseCase.WithParent(in.ParentKeyID))
	}

	id := in.ID
	if id == "" {
		id = newKeyID(in.Purpose)
	}

	logger.Info("generating key",
		slog.String("key_id", id),
		slog.String("key_type", string(keyType)),
		slog.String("purpose", in.Purpose),
	)

	key, err := manager.GenerateKey(ctx, id, keyType, in.Purpose, in.ValidityDays, opts...)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	logger.Info("key generated", slog.String("key_id", key.KeyID), slog.String("status", string(key.Status)))

	if in.Format == "json" {
		return outputJSON(writer, key)
	}
	outputKeyText(writer, "Key generated", key)
	return nil
}

// RunRotateKey retires oldID and activates newID. An empty newID generates a replacement.
func RunRotateKey(
	ctx context.Context,
	manager KeyManager,
	logger *slog.Logger,
	writer io.Writer,
	oldID, newID string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if newID == "" {
		current := manager.List(keysDomain.ListFilter{})
		purpose := ""
		for _, k := range current {
			if k.KeyID == oldID {
				purpose = k.Purpose
				break
			}
		}
		if purpose == "" {
			return fmt.Errorf("failed to rotate key: %w: %s", keysDomain.ErrKeyNotFound, oldID)
		}
		newID = newKeyID(purpose)
	}

	logger.Info("rotating key", slog.String("old_key_id", oldID), slog.String("new_key_id", newID))

	key, err := manager.Rotate(ctx, oldID, newID)
	if err != nil {
		return fmt.Errorf("failed to rotate key: %w", err)
	}

	logger.Info("key rotated", slog.String("old_key_id", oldID), slog.String("new_key_id", key.KeyID))

	if format == "json" {
		return outputJSON(writer, key)
	}
	outputKeyText(writer, "Key rotated; now active", key)
	return nil
}

// RunKeyTransition applies one lifecycle action (activate, retire or revoke) to a key.
func RunKeyTransition(
	ctx context.Context,
	manager KeyManager,
	logger *slog.Logger,
	writer io.Writer,
	action, id string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	var transition func(ctx context.Context, id string) (keysDomain.KeyMetadata, error)
	switch action {
	case "activate":
		transition = manager.Activate
	case "retire":
		transition = manager.Retire
	case "revoke":
		transition = manager.Revoke
	default:
		return fmt.Errorf("invalid key action: %s (valid options: activate, retire, revoke)", action)
	}

	key, err := transition(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to %s key: %w", action, err)
	}

	logger.Info("key status changed", slog.String("key_id", id), slog.String("status", string(key.Status)))

	if format == "json" {
		return outputJSON(writer, key)
	}
	outputKeyText(writer, "Key "+string(key.Status), key)
	return nil
}

// RunPurgeKeys wipes the secret material of keys retired beyond the retention window.
func RunPurgeKeys(ctx context.Context, manager KeyManager, logger *slog.Logger, writer io.Writer, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	purged, err := manager.PurgeRetired(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge keys: %w", err)
	}
	if purged == nil {
		purged = []string{}
	}

	logger.Info("retired keys purged", slog.Int("count", len(purged)))

	if format == "json" {
		return outputJSON(writer, map[string]any{"purged": purged, "count": len(purged)})
	}
	_, _ = fmt.Fprintf(writer, "Purged %d retired key(s)\n", len(purged))
	for _, id := range purged {
		_, _ = fmt.Fprintf(writer, "  - %s\n", id)
	}
	return nil
}

// RunListKeys lists key metadata, optionally for one purpose.
func RunListKeys(manager KeyManager, writer io.Writer, purpose, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	keys := manager.List(keysDomain.ListFilter{Purpose: purpose})
	if format == "json" {
		return outputJSON(writer, keys)
	}

	_, _ = fmt.Fprintf(writer, "%-40s %-10s %-13s %-9s %s\n", "ID", "TYPE", "ALGORITHM", "STATUS", "PURPOSE")
	for _, k := range keys {
		_, _ = fmt.Fprintf(writer, "%-40s %-10s %-13s %-9s %s\n", k.KeyID, k.KeyType, k.Algorithm, k.Status, k.Purpose)
	}
	return nil
}

// RunExportPublicKeys writes the public half of every non-revoked signing key. The json
// format is the key id to PEM map accepted by verify-capsule --keys.
func RunExportPublicKeys(manager KeyManager, writer io.Writer, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	keys := manager.PublicKeys()
	if format == "json" {
		out := make(map[string]string, len(keys))
		for _, k := range keys {
			out[k.KeyID] = k.PublicKeyPEM
		}
		return outputJSON(writer, out)
	}

	for _, k := range keys {
		_, _ = fmt.Fprintf(writer, "# %s (%s, %s, %s)\n%s\n", k.KeyID, k.Algorithm, k.Status, k.Purpose, k.PublicKeyPEM)
	}
	return nil
}

func outputKeyText(writer io.Writer, title string, key keysDomain.KeyMetadata) {
	_, _ = fmt.Fprintf(writer, "%s\n", title)
	_, _ = fmt.Fprintf(writer, "  ID:        %s\n", key.KeyID)
	_, _ = fmt.Fprintf(writer, "  Type:      %s\n", key.KeyType)
	_, _ = fmt.Fprintf(writer, "  Algorithm: %s\n", key.Algorithm)
	_, _ = fmt.Fprintf(writer, "  Purpose:   %s\n", key.Purpose)
	_, _ = fmt.Fprintf(writer, "  Status:    %s\n", key.Status)
	if key.ExpiresAt != nil {
		_, _ = fmt.Fprintf(writer, "  Expires:   %s\n", key.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
}
