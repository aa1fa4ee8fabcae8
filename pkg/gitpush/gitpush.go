// Package gitpush stages, commits, and pushes a master-data directory after
// a successful sync, shelling out to the system git binary. Git push is out
// of scope for the engine's core behavior; this is a thin adapter kept
// minimal on purpose.
package gitpush

import (
	"bytes"
	"os"
	"os/exec"
	"strings"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

// Helper runs git commands against one repository directory with optional
// credentials and an HTTP(S) proxy.
type Helper struct {
	Username string
	Email    string
	Password string
	Proxy    string
}

// New builds a Helper from the given credentials and outbound proxy.
func New(username, email, password, proxy string) *Helper {
	return &Helper{Username: username, Email: email, Password: password, Proxy: proxy}
}

// PushChanges commits any pending changes under repoPath (tagging the commit
// message with dataVersion) and pushes to the current branch's remote. It
// reports whether anything was pushed.
func (h *Helper) PushChanges(repoPath, dataVersion string) (bool, error) {
	if _, err := os.Stat(repoPath); err != nil {
		return false, apperror.New(apperror.KindParseError, "repository path does not exist: %s", repoPath)
	}

	status, err := h.runGit(repoPath, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(status) == "" {
		unpushed, err := h.runGit(repoPath, "log", "@{u}..", "--oneline")
		if err != nil || strings.TrimSpace(unpushed) == "" {
			return false, nil
		}
	} else {
		if _, err := h.runGit(repoPath, "add", "-A"); err != nil {
			return false, err
		}
		commitMsg := "Sekai master data version " + dataVersion
		author := "Haruki Sekai Master Update Bot <no-reply@mail.seiunx.com>"
		if _, err := h.runGit(repoPath,
			"-c", "user.name="+h.Username,
			"-c", "user.email="+h.Email,
			"commit", "--author", author, "-m", commitMsg,
		); err != nil {
			return false, err
		}
	}

	if err := h.pushToRemote(repoPath); err != nil {
		return false, err
	}
	return true, nil
}

func (h *Helper) pushToRemote(repoPath string) error {
	branch, err := h.runGit(repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return err
	}
	branch = strings.TrimSpace(branch)

	if h.Password == "" {
		_, err := h.runGit(repoPath, "push", "origin", branch)
		return err
	}

	askpass, err := os.CreateTemp("", "git-askpass-*.sh")
	if err != nil {
		return apperror.New(apperror.KindIoError, "write askpass script: %v", err)
	}
	defer os.Remove(askpass.Name())
	script := "#!/bin/sh\necho '" + strings.ReplaceAll(h.Password, "'", `'\''`) + "'\n"
	if _, err := askpass.WriteString(script); err != nil {
		askpass.Close()
		return apperror.New(apperror.KindIoError, "write askpass script: %v", err)
	}
	askpass.Close()
	if err := os.Chmod(askpass.Name(), 0o700); err != nil {
		return apperror.New(apperror.KindIoError, "chmod askpass script: %v", err)
	}

	cmd := exec.Command("git", "push", "origin", branch)
	cmd.Dir = repoPath
	cmd.Env = append(os.Environ(), "GIT_ASKPASS="+askpass.Name())
	if h.Proxy != "" {
		cmd.Env = append(cmd.Env, "HTTP_PROXY="+h.Proxy, "HTTPS_PROXY="+h.Proxy)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if isBenignGitFailure(stderr.String()) {
			return nil
		}
		return apperror.New(apperror.KindNetworkError, "git push failed: %s", stderr.String())
	}
	return nil
}

func (h *Helper) runGit(repoPath string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = repoPath
	if h.Proxy != "" {
		cmd.Env = append(os.Environ(), "HTTP_PROXY="+h.Proxy, "HTTPS_PROXY="+h.Proxy)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if !isBenignGitFailure(stderr.String()) {
			return "", apperror.New(apperror.KindNetworkError, "git command failed: %s", stderr.String())
		}
	}
	return stdout.String(), nil
}

func isBenignGitFailure(stderr string) bool {
	return strings.Contains(stderr, "nothing to commit") ||
		strings.Contains(stderr, "already up-to-date") ||
		strings.Contains(stderr, "Everything up-to-date")
}
