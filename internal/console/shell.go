package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/framepicker/internal/controller"
	"github.com/lehigh-university-libraries/framepicker/internal/images"
	"github.com/lehigh-university-libraries/framepicker/internal/report"
	"github.com/lehigh-university-libraries/framepicker/internal/review"
)

// Backend is the part of the controller the shell drives
type Backend interface {
	Review() *review.Session
	Export(ctx context.Context, w io.Writer) (*controller.ExportResult, error)
	Pull(ctx context.Context, dir string) (*images.PullResult, error)
}

// Shell is a line-oriented review loop over one completed task
type Shell struct {
	backend Backend
	in      io.Reader
	out     io.Writer
	watched *review.Session
}

// NewShell creates a shell reading commands from in and writing to out
func NewShell(backend Backend, in io.Reader, out io.Writer) *Shell {
	return &Shell{backend: backend, in: in, out: out}
}

var errQuit = errors.New("quit")

// Run reads commands until quit, end of input or ctx is done
func (s *Shell) Run(ctx context.Context) error {
	session := s.backend.Review()
	if session == nil {
		return controller.ErrNoReview
	}
	s.watch(session)

	WriteGrid(s.out, session)
	fmt.Fprintln(s.out, `Type "help" for commands.`)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		fmt.Fprint(s.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return <-scanErr
			}
			if err := s.Execute(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintf(s.out, "Error: %v\n", err)
			}
		}
	}
}

// Execute runs a single shell command line
func (s *Shell) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	session := s.backend.Review()
	if session == nil {
		return controller.ErrNoReview
	}
	s.watch(session)

	command, args := strings.ToLower(fields[0]), fields[1:]
	switch command {
	case "ls", "list":
		WriteGrid(s.out, session)
	case "toggle", "t":
		if len(args) != 1 {
			return errors.New("usage: toggle <n|filename>")
		}
		filename, err := s.resolve(session, args[0])
		if err != nil {
			return err
		}
		if _, err := session.Toggle(filename); err != nil {
			return err
		}
	case "all":
		session.SelectAllVisible()
	case "none":
		session.ClearSelection()
	case "filter":
		return s.filter(session, args)
	case "open", "o":
		if len(args) != 1 {
			return errors.New("usage: open <n|filename>")
		}
		filename, err := s.resolve(session, args[0])
		if err != nil {
			return err
		}
		return session.Open(ctx, filename)
	case "next", "n":
		return session.Step(ctx, 1)
	case "prev", "p":
		return session.Step(ctx, -1)
	case "check", "c":
		_, err := session.TogglePreviewSelection()
		return err
	case "close":
		session.Close()
	case "export":
		path := fmt.Sprintf("frames_%s.zip", session.TaskID())
		if len(args) > 0 {
			path = args[0]
		}
		return s.export(ctx, path)
	case "pull":
		dir := fmt.Sprintf("frames_%s", session.TaskID())
		if len(args) > 0 {
			dir = args[0]
		}
		return s.pull(ctx, dir)
	case "report":
		return s.report(session, args)
	case "help", "h", "?":
		s.printHelp()
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
	return nil
}

func (s *Shell) resolve(session *review.Session, ref string) (string, error) {
	filename, ok := session.ResolveVisible(ref)
	if !ok {
		return "", fmt.Errorf("%w: %s", review.ErrNotVisible, ref)
	}
	return filename, nil
}

func (s *Shell) filter(session *review.Session, args []string) error {
	mode := "toggle"
	if len(args) > 0 {
		mode = strings.ToLower(args[0])
	}
	switch mode {
	case "on":
		session.SetFilter(true)
	case "off":
		session.SetFilter(false)
	case "toggle":
		session.ToggleFilter()
	default:
		return errors.New("usage: filter [on|off|toggle]")
	}
	return nil
}

// watch subscribes the shell to session changes once per session, so every
// mutation is echoed from the event rather than by the command that caused it
func (s *Shell) watch(session *review.Session) {
	if s.watched == session {
		return
	}
	s.watched = session
	session.Subscribe(func(e review.Event) {
		if s.watched != session {
			return
		}
		s.render(session, e)
	})
}

func (s *Shell) render(session *review.Session, e review.Event) {
	switch e.Kind {
	case review.EventSelection:
		if e.Selection != nil && len(e.Selection.Filenames) == 1 {
			fmt.Fprintf(s.out, "%s %s | %s\n", e.Selection.Filenames[0], selectedWord(e.Selection.Selected), Counter(session))
			return
		}
		fmt.Fprintln(s.out, Counter(session))
	case review.EventFilter:
		state := "showing all images"
		if session.FilterEnabled() {
			state = "hiding flagged images"
		}
		fmt.Fprintf(s.out, "Filter: %s | %s\n", state, Counter(session))
	case review.EventPreview:
		fmt.Fprintln(s.out, PreviewLine(session.Preview().State()))
	}
}

func (s *Shell) export(ctx context.Context, path string) error {
	var result *controller.ExportResult
	err := images.WriteOutput(path, func(w io.Writer) error {
		var err error
		result, err = s.backend.Export(ctx, w)
		return err
	})
	if err != nil {
		return err
	}

	scope := "selected"
	if result.Full {
		scope = "all"
	}
	fmt.Fprintf(s.out, "Saved %d %s images to %s (%d bytes)\n", result.Files, scope, path, result.Bytes)
	return nil
}

func (s *Shell) pull(ctx context.Context, dir string) error {
	result, err := s.backend.Pull(ctx, dir)
	if result != nil {
		fmt.Fprintf(s.out, "Pulled %d images into %s (%d skipped, %d failed)\n",
			len(result.Downloaded), dir, len(result.Skipped), len(result.Failed))
	}
	return err
}

func (s *Shell) report(session *review.Session, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: report <%s> [path]", strings.Join(report.Formats, "|"))
	}
	format := args[0]
	r := report.Build(session)

	if len(args) < 2 {
		return report.Write(s.out, r, format)
	}

	path := args[1]
	err := images.WriteOutput(path, func(w io.Writer) error {
		return report.Write(w, r, format)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Wrote %s report to %s\n", format, path)
	return nil
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `Commands:
  ls                      List visible images and the selection counter
  toggle <n|name>         Select or deselect an image
  all                     Select every visible image
  none                    Clear the selection
  filter [on|off|toggle]  Hide or show flagged images
  open <n|name>           Preview an image
  next, prev              Move the preview within the visible images
  check                   Select or deselect the previewed image
  close                   Close the preview
  export [path]           Download the archive (everything if untouched, else the selection)
  pull [dir]              Save the selected images one by one
  report <format> [path]  Write a selection report (text, json, csv, yaml, parquet)
  quit                    Leave the shell
`)
}

func selectedWord(selected bool) string {
	if selected {
		return "selected"
	}
	return "deselected"
}
