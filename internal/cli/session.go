package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ariel-frischer/smartrelease/internal/config"
	clierrors "github.com/ariel-frischer/smartrelease/internal/errors"
	"github.com/ariel-frischer/smartrelease/internal/git"
	"github.com/ariel-frischer/smartrelease/internal/graph"
	"github.com/ariel-frischer/smartrelease/internal/output"
	"github.com/ariel-frischer/smartrelease/internal/plan"
	"github.com/ariel-frischer/smartrelease/internal/publish"
	"github.com/ariel-frischer/smartrelease/internal/release"
	"github.com/ariel-frischer/smartrelease/internal/workspace"
)

// session is everything a release command needs, built from the global
// flags, the configuration and the repository around the working directory.
type session struct {
	cfg      *config.Configuration
	ws       *workspace.Workspace
	pipeline *release.Pipeline
	logger   output.Logger
	palette  output.Palette
	out      io.Writer
	workDir  string
}

// selectionFlags choose packages and bump levels. Shared by every command
// that plans a release.
type selectionFlags struct {
	bump     string
	breaking bool
}

func addSelectionFlags(cmd *cobra.Command, f *selectionFlags) {
	cmd.Flags().StringVar(&f.bump, "bump", "", "Minimum bump for the named packages (major, minor, patch)")
	cmd.Flags().BoolVar(&f.breaking, "breaking", false, "Treat the named packages as having breaking changes")
}

// options converts the flags and package arguments into pipeline options.
func (f selectionFlags) options(args []string) (release.Options, error) {
	opts := release.Options{Packages: args, Breaking: f.breaking}
	if f.bump != "" {
		level, err := graph.ParseBumpLevel(f.bump)
		if err != nil || level == graph.None {
			return opts, clierrors.InvalidBumpLevel(f.bump)
		}
		opts.Bump = level
	}
	return opts, nil
}

// newSession opens the repository containing g.dir and loads the
// configuration and workspace found at its root.
func newSession(g globalOptions, out, errOut io.Writer) (*session, error) {
	workDir := g.dir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting current directory: %w", err)
		}
		workDir = wd
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", workDir, err)
	}

	caps := output.DetectTerminalCapabilities(os.Stderr)
	useColor := caps.SupportsColor && !g.noColor
	logger := output.NewTerminalLogger(errOut, g.verbose, useColor)
	palette := output.NewPalette(useColor)

	repo, err := git.Open(workDir, logger)
	if err != nil {
		return nil, clierrors.GitNotRepository(err)
	}

	cfg, err := config.LoadWithOptions(config.LoadOptions{
		ProjectDir:        repo.Root(),
		ProjectConfigPath: g.configPath,
		WarningWriter:     errOut,
	})
	if err != nil {
		return nil, clierrors.ConfigParseError(err)
	}

	ws, err := workspace.Load(repo.Root(), cfg.WorkspaceFile)
	if err != nil {
		return nil, clierrors.WorkspaceMetadata(err)
	}
	logger.Debugf("Workspace %s: %d packages", ws.Root, len(ws.Packages))

	p := release.Pipeline{
		Config:    cfg,
		Workspace: ws,
		Repo:      repo,
		Logger:    logger,
		Out:       errOut,
		Caps:      caps,
	}
	if cfg.Publish.Command != "" {
		pub, err := publish.NewCommandPublisher(cfg.Publish.Command)
		if err != nil {
			return nil, clierrors.ConfigParseError(err)
		}
		pub.Stdout, pub.Stderr = errOut, errOut
		pub.Palette = palette
		p.Publisher = pub
	}
	index, err := newIndex(cfg, repo.Root())
	if err != nil {
		return nil, clierrors.ConfigParseError(err)
	}
	p.Index = index

	pipeline, err := release.New(p)
	if err != nil {
		return nil, clierrors.ConfigParseError(err)
	}

	return &session{
		cfg:      cfg,
		ws:       ws,
		pipeline: pipeline,
		logger:   logger,
		palette:  palette,
		out:      out,
		workDir:  workDir,
	}, nil
}

// newIndex returns the registry index configured by index.kind, or nil for none.
func newIndex(cfg *config.Configuration, root string) (publish.Index, error) {
	switch cfg.Index.Kind {
	case config.IndexHTTP:
		idx, err := publish.NewHTTPIndex(cfg.Index.URL)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case config.IndexDir:
		dir := cfg.Index.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		return &publish.DirIndex{Dir: dir}, nil
	default:
		return nil, nil
	}
}

// explain turns pipeline errors into CLI errors with remediation.
func (s *session) explain(err error) error {
	var (
		unknown  *graph.UnknownPackageError
		cycle    *plan.CycleError
		pubErr   *publish.Error
		metadata *workspace.MetadataError
		repoErr  *git.RepositoryError
	)
	switch {
	case err == nil:
		return nil
	case clierrors.IsCLIError(err):
		return err
	case errors.Is(err, release.ErrNoPackage):
		return clierrors.NoPackageSelected(s.workDir)
	case errors.Is(err, release.ErrDirtyWorktree):
		return clierrors.DirtyWorkingTree()
	case errors.Is(err, release.ErrNoPublisher):
		return clierrors.MissingPublishCommand()
	case errors.As(err, &unknown):
		return clierrors.UnknownPackage(unknown.Name, s.packageNames())
	case errors.As(err, &cycle):
		return clierrors.DependencyCycle(err, cycle.Path)
	case errors.As(err, &pubErr):
		return clierrors.PublishFailed(err, pubErr.Published, pubErr.Remaining)
	case errors.As(err, &metadata):
		return clierrors.WorkspaceMetadata(err)
	case errors.As(err, &repoErr):
		return clierrors.Wrap(err, clierrors.Repository)
	default:
		return err
	}
}

func (s *session) packageNames() []string {
	names := make([]string, 0, len(s.ws.Packages))
	for _, p := range s.ws.Packages {
		names = append(names, p.Name)
	}
	return names
}

// relPath shortens path for display.
func (s *session) relPath(path string) string {
	if rel, err := filepath.Rel(s.workDir, path); err == nil {
		return rel
	}
	return path
}
