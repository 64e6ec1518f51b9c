package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/lanternsearch/lantern/internal/embed"
)

// minModelDiskSpace is what a first-time model download needs: the
// model file, its temp copy during the atomic rename, and slack.
const minModelDiskSpace = 4 * embed.DefaultModelSize

// CheckEmbedderModel reports whether the local embedding model is
// already on disk. Advisory: the daemon serves with Ollama or the
// static embedder either way.
func (c *Checker) CheckEmbedderModel() CheckResult {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return CheckResult{
			Name:     "embedder_model",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("cannot determine home directory: %v", err),
			Required: false,
		}
	}
	return c.checkEmbedderModelAt(filepath.Join(homeDir, ".lantern", "models"))
}

// checkEmbedderModelAt checks for the model file under a specific
// models directory so tests can point it at a temp dir.
func (c *Checker) checkEmbedderModelAt(modelsDir string) CheckResult {
	result := CheckResult{
		Name:     "embedder_model",
		Required: false,
	}

	modelPath := filepath.Join(modelsDir, embed.DefaultModelFile)
	info, err := os.Stat(modelPath)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not downloaded (fetched on first index)", embed.DefaultModelName)
		result.Details = "Expected at: " + modelPath
		return result
	}

	// A partial download left behind by a crash is smaller than any
	// plausible quantization of the model.
	if info.Size() < embed.DefaultModelSize/2 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Model file looks truncated (%s, expected ~%s)",
			humanBytes(uint64(info.Size())), humanBytes(uint64(embed.DefaultModelSize)))
		result.Details = "Delete it to retry the download: " + modelPath
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s ready (%s)", embed.DefaultModelName, humanBytes(uint64(info.Size())))
	result.Details = modelPath
	return result
}

// CheckEmbedderDiskSpace checks there is room to download the model.
func (c *Checker) CheckEmbedderDiskSpace() CheckResult {
	result := CheckResult{
		Name:     "embedder_disk_space",
		Required: false,
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Cannot determine home directory: %v", err)
		return result
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(homeDir, &stat); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Cannot check disk space: %v", err)
		return result
	}

	availableBytes := stat.Bavail * uint64(stat.Bsize)

	if availableBytes < uint64(minModelDiskSpace) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s available (model download needs ~%s)",
			humanBytes(availableBytes), humanBytes(uint64(minModelDiskSpace)))
		result.Details = "Free up space or run with the static embedder (--offline)"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s available for model download", humanBytes(availableBytes))
	return result
}
