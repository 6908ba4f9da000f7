package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// MountMetadata describes a running mount. It is written to a sidecar file
// beside the mount point so other invocations can list it.
type MountMetadata struct {
	PID        int       `json:"pid"`
	Store      string    `json:"store"`
	Table      string    `json:"table,omitempty"`
	MountPoint string    `json:"mount_point"`
	Port       int       `json:"port"`
	Timestamp  time.Time `json:"timestamp"`
	Writable   bool      `json:"writable"`
}

// generateMountName creates a readable mount directory name from the store
// path, e.g. "records-a1b2c3".
func generateMountName(storePath string) string {
	base := strings.TrimSuffix(filepath.Base(storePath), filepath.Ext(storePath))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "filetree"
	}
	hash := sha256.Sum256([]byte(storePath))
	return fmt.Sprintf("%s-%s", base, hex.EncodeToString(hash[:3]))
}

// mountsDir returns the directory holding default mount points and their
// sidecars.
func mountsDir() (string, error) {
	dir := filepath.Join(os.TempDir(), "filetree")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// sidecarPath is stored beside the mount point, not inside it, so it stays
// readable while the mount is up.
func sidecarPath(mountPoint string) string {
	return filepath.Clean(mountPoint) + ".meta.json"
}

func saveMountMetadata(meta *MountMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sidecarPath(meta.MountPoint), data, 0o644)
}

func loadMountMetadata(mountPoint string) (*MountMetadata, error) {
	data, err := os.ReadFile(sidecarPath(mountPoint))
	if err != nil {
		return nil, err
	}
	var meta MountMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// listMounts reads every sidecar in dir. Unreadable sidecars are skipped.
func listMounts(dir string) ([]*MountMetadata, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var mounts []*MountMetadata
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".meta.json") {
			continue
		}
		meta, err := loadMountMetadata(filepath.Join(dir, strings.TrimSuffix(name, ".meta.json")))
		if err != nil {
			continue
		}
		mounts = append(mounts, meta)
	}
	return mounts, nil
}

// isProcessRunning sends signal 0, which only checks that pid exists.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func newMountsCmd(_ *options) *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "mounts",
		Short: "List mounts started without an explicit mount point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := mountsDir()
			if err != nil {
				return err
			}
			mounts, err := listMounts(dir)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, m := range mounts {
				alive := isProcessRunning(m.PID)
				if !alive && prune {
					_ = os.Remove(sidecarPath(m.MountPoint))
					continue
				}
				state := "running"
				if !alive {
					state = "stale"
				}
				mode := "ro"
				if m.Writable {
					mode = "rw"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\tpid=%d\tport=%d\t%s\n",
					m.MountPoint, m.Store, mode, m.PID, m.Port, state)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "remove sidecars of mounts whose process has exited")
	return cmd
}
