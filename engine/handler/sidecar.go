package handler

import (
	"encoding/json"
	"os"

	"github.com/lurkhq/lurk/engine/domain"
)

// WriteSidecar writes the post's full record next to mainFile as
// <mainFile>.json and returns the sidecar path.
func WriteSidecar(mainFile string, post *domain.PostRecord) (string, error) {
	data, err := json.MarshalIndent(post, "", "  ")
	if err != nil {
		return "", domain.Wrap(domain.KindProcessing, "encode sidecar", err)
	}
	dest := mainFile + ".json"
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", domain.Wrap(domain.KindFilesystem, "write sidecar", err)
	}
	return dest, nil
}
