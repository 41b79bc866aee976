package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

const helpText = `Commands:
  login [email]    sign in and download the server list
  logout           forget the session and empty the local list
  list             show the favorites
  add <name>       add a favorite
  remove <name>    remove a favorite
  status           show the sync state
  help             show this help
  exit             leave the shell
`

func (a *App) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		_, err := fmt.Fprint(a.out, helpText)
		return err
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout(ctx)
	case "list", "ls":
		return a.list(ctx)
	case "add":
		return a.add(ctx, args)
	case "remove", "rm":
		return a.remove(ctx, args)
	case "status":
		return a.status(ctx)
	}

	return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
}

// Shell reads commands until exit, EOF or ctx is done. Command errors are
// printed and the shell goes on.
func (a *App) Shell(ctx context.Context) error {
	fmt.Fprintln(a.out, "Favorites shell (type 'help' for commands)")

	for ctx.Err() == nil {
		fmt.Fprintf(a.out, "favorites (%s)> ", a.favorites.State())
		line, err := a.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := err != nil

		parts := strings.Fields(line)
		if len(parts) > 0 {
			if parts[0] == "exit" || parts[0] == "quit" {
				fmt.Fprintln(a.out, "Bye!")
				return nil
			}
			if cmdErr := a.dispatch(ctx, parts[0], parts[1:]); cmdErr != nil {
				fmt.Fprintln(a.out, "error:", cmdErr)
			}
		}

		if eof {
			fmt.Fprintln(a.out)
			return nil
		}
	}

	return ctx.Err()
}

func (a *App) login(ctx context.Context, args []string) error {
	var (
		email string
		err   error
	)
	if len(args) > 0 {
		email = args[0]
	} else {
		email, err = GetSimpleText(a.reader, "Email", a.out)
		if err != nil {
			return err
		}
	}

	credential, err := GetPassword(a.reader, a.fromTerminal, a.out)
	if err != nil {
		return err
	}

	if err := a.favorites.Login(ctx, email, credential); err != nil {
		return err
	}

	if !a.settle(ctx) {
		fmt.Fprintf(a.out, "Logged in as %s, the server list is still loading\n", email)
		return nil
	}
	_, err = fmt.Fprintf(a.out, "Logged in as %s, %d favorites\n", email, len(a.favorites.Favorites()))

	return err
}

func (a *App) logout(ctx context.Context) error {
	if err := a.favorites.Logout(); err != nil {
		return err
	}
	a.settle(ctx)
	_, err := fmt.Fprintln(a.out, "Logged out")

	return err
}

func (a *App) list(ctx context.Context) error {
	if !a.settle(ctx) {
		fmt.Fprintln(a.out, "(server unreachable, showing the local copy)")
	}

	favorites := a.favorites.Favorites()
	if len(favorites) == 0 {
		_, err := fmt.Fprintln(a.out, "(no favorites)")
		return err
	}
	for i, name := range favorites {
		if _, err := fmt.Fprintf(a.out, "%d. %s\n", i+1, name); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) add(ctx context.Context, args []string) error {
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		return fmt.Errorf("%w: add <name>", ErrUsage)
	}
	if a.favorites.IsFavorite(name) {
		_, err := fmt.Fprintf(a.out, "%q is already a favorite\n", name)
		return err
	}

	if err := a.favorites.Add(name); err != nil {
		return err
	}
	a.settle(ctx)
	_, err := fmt.Fprintf(a.out, "Added %q\n", name)

	return err
}

func (a *App) remove(ctx context.Context, args []string) error {
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		return fmt.Errorf("%w: remove <name>", ErrUsage)
	}
	if !a.favorites.IsFavorite(name) {
		_, err := fmt.Fprintf(a.out, "%q is not a favorite\n", name)
		return err
	}

	if err := a.favorites.Remove(name); err != nil {
		return err
	}
	a.settle(ctx)
	_, err := fmt.Fprintf(a.out, "Removed %q\n", name)

	return err
}

func (a *App) status(ctx context.Context) error {
	a.settle(ctx)
	snapshot := a.favorites.Snapshot()

	lastErr := "none"
	if snapshot.LastError != nil {
		lastErr = snapshot.LastError.Error()
	}
	_, err := fmt.Fprintf(
		a.out,
		"state: %s\nlogged in: %t\nfavorites: %d\nlast error: %s\n",
		snapshot.State,
		snapshot.LoggedIn,
		len(snapshot.Favorites),
		lastErr,
	)

	return err
}
