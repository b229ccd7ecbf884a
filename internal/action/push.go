package action

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/errdefs"
	"github.com/flemzord/snapkeep/internal/runner"
	"github.com/flemzord/snapkeep/internal/security"
	"github.com/google/uuid"
)

// RootEnv names the environment variable carrying the install root to
// backup scripts.
const RootEnv = "SNAPKEEP_ROOT"

// backupScript is looked up relative to the backup repository.
const backupScript = "scripts/backup.sh"

const noChangesMarker = "nothing to commit"

// versionPattern accepts abbreviated and full commit ids only, so a
// recorded version can never be read as a git option.
var versionPattern = regexp.MustCompile(`^[0-9a-fA-F]{4,64}$`)

// Push commits and pushes a git working copy.
type Push struct {
	Runner  runner.Runner
	Root    string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Compile-time interface check.
var _ Action = (*Push)(nil)

// Kind implements Action.
func (p *Push) Kind() artifact.Kind { return artifact.KindVersionedPush }

// Precheck implements Action.
func (p *Push) Precheck(t Target) error {
	if !isDir(t.WorldsDir) {
		return &PreconditionError{Subject: "Worlds directory"}
	}
	return nil
}

// Produce implements Action. When the repository ships a backup script it
// is delegated the whole push; otherwise git is driven directly.
func (p *Push) Produce(ctx context.Context, req Request) (Outcome, error) {
	repo := req.Target.BackupRepo
	if repo == "" {
		return Outcome{}, errdefs.Validationf("target %s has no backup repository", req.Target.Name)
	}

	script := filepath.Join(repo, filepath.FromSlash(backupScript))
	if info, err := os.Stat(script); err == nil && info.Mode().IsRegular() {
		if _, err := p.run(ctx, repo, "bash", script, "push", "--message", req.Description); err != nil {
			return Outcome{}, classify(err)
		}
	} else {
		if _, err := p.git(ctx, repo, "add", "-A"); err != nil {
			return Outcome{}, classify(err)
		}
		res, err := p.git(ctx, repo, "commit", "-m", req.Description)
		if err != nil {
			if strings.Contains(res.Stdout, noChangesMarker) {
				return Outcome{}, fmt.Errorf("%w: %s", ErrNoChanges, strings.TrimSpace(res.Stdout))
			}
			return Outcome{}, classify(err)
		}
		if _, err := p.git(ctx, repo, "push"); err != nil {
			return Outcome{}, classify(err)
		}
	}

	// The push already happened, so an unreadable HEAD only costs the
	// version on the record.
	var version string
	if res, err := p.git(ctx, repo, "rev-parse", "--short", "HEAD"); err != nil {
		p.logger().Warn("action: pushed but cannot read version", "target", req.Target.Name, "error", runner.Diagnostic(err))
	} else {
		version = strings.TrimSpace(res.Stdout)
	}

	id := req.ArtifactID
	if id == "" {
		id = uuid.NewString()
	}
	a := artifact.Artifact{
		ID:          id,
		Kind:        artifact.KindVersionedPush,
		Target:      req.Target.Name,
		ScheduleID:  req.ScheduleID,
		Description: req.Description,
		Version:     version,
		CreatedAt:   req.Now.UTC(),
	}
	p.logger().Info("action: backup pushed", "target", a.Target, "version", version)
	msg := "Backup complete"
	if version != "" {
		msg = fmt.Sprintf("Backup complete (%s)", version)
	}
	return Outcome{Artifact: a, Message: msg}, nil
}

// Tree implements Action using git ls-tree on the recorded commit.
func (p *Push) Tree(ctx context.Context, t Target, a artifact.Artifact) (map[string]string, error) {
	if err := checkVersion(a.Version); err != nil {
		return nil, err
	}
	res, err := p.git(ctx, t.BackupRepo, "ls-tree", "-r", a.Version)
	if err != nil {
		return nil, fmt.Errorf("action: list tree of %s: %s", a.Version, runner.Diagnostic(err))
	}
	return parseLsTree(res.Stdout), nil
}

// Content implements Action. Commits keep their own content.
func (p *Push) Content(context.Context, Target, artifact.Artifact) (map[string][]byte, error) {
	return nil, nil
}

// Restore implements Action by checking the recorded commit out over the
// working copy.
func (p *Push) Restore(ctx context.Context, t Target, a artifact.Artifact) error {
	if err := checkVersion(a.Version); err != nil {
		return err
	}
	if _, err := p.git(ctx, t.BackupRepo, "checkout", a.Version, "--", "."); err != nil {
		return fmt.Errorf("action: checkout %s: %s", a.Version, runner.Diagnostic(err))
	}
	p.logger().Info("action: backup restored", "target", t.Name, "version", a.Version)
	return nil
}

// Discard implements Action. Pushed commits are never rewritten.
func (p *Push) Discard(context.Context, artifact.Artifact) error { return nil }

func (p *Push) git(ctx context.Context, repo string, args ...string) (runner.Result, error) {
	return p.run(ctx, "", "git", append([]string{"-C", repo}, args...)...)
}

func (p *Push) run(ctx context.Context, dir, program string, args ...string) (runner.Result, error) {
	return p.Runner.Run(ctx, runner.Command{
		Program: program,
		Args:    args,
		Dir:     dir,
		Env:     security.SanitizedEnv(RootEnv + "=" + p.Root),
		Timeout: p.Timeout,
	})
}

func (p *Push) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// classify maps the "nothing to commit" diagnostic to ErrNoChanges and
// leaves every other failure as is.
func classify(err error) error {
	if strings.Contains(runner.Diagnostic(err), noChangesMarker) {
		return errors.Join(ErrNoChanges, err)
	}
	return err
}

func checkVersion(v string) error {
	if !versionPattern.MatchString(v) {
		return errdefs.Validationf("invalid commit reference %q", v)
	}
	return nil
}

// parseLsTree reads "<mode> <type> <object>\t<path>" lines into path to
// object id, keeping blobs only.
func parseLsTree(out string) map[string]string {
	tree := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		meta, path, ok := strings.Cut(sc.Text(), "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) != 3 || fields[1] != "blob" {
			continue
		}
		tree[path] = fields[2]
	}
	return tree
}
