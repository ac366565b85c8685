package main

import (
	"context"
	"errors"
	"net"
	"os"

	"go.mongodb.org/mongo-driver/mongo"

	"wekan-attachments/internal/config"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	if errors.Is(err, errLedgerRequired) {
		lines = append(lines, "hint: drop --no-ledger or run: wekan-attachments config set export.ledger true")
		return uniqueLines(lines)
	}

	if errors.Is(err, config.ErrUntrustedProjectConfig) {
		lines = append(lines, "hint: drop --project to write the global config, or export WEKAN_ATTACHMENTS_TRUST_PROJECT_CONFIG=true")
		return uniqueLines(lines)
	}

	if errors.Is(err, context.Canceled) {
		lines = append(lines,
			"hint: the run was interrupted; completed writes are kept.",
			"hint: re-run the same command to continue; export --resume skips files already written.",
		)
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) || mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		lines = append(lines,
			"hint: ensure MongoDB is reachable at mongo_uri (override with WEKAN_MONGO_URI or MONGO_URL).",
			"hint: check the configured value with: wekan-attachments config get mongo_uri",
		)
		if snapHint := snapMongoHint(); snapHint != "" {
			lines = append(lines, snapHint)
		}
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

// snapMongoHint covers Wekan snap installs, whose bundled MongoDB listens on 27019.
func snapMongoHint() string {
	if os.Getenv("SNAP") == "" && os.Getenv("SNAP_NAME") == "" {
		return ""
	}
	return "hint: in snap installs, MongoDB listens on port 27019: WEKAN_MONGO_URI=mongodb://127.0.0.1:27019/"
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
