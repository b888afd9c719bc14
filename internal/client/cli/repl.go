package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

var errUsage = errors.New("usage")

// execIface defines the command surface the REPL dispatches to. Every command
// receives the words following the command name.
type execIface interface {
	hasAccount() bool

	Register(ctx context.Context, args []string) error
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context, args []string) error

	New(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Archive(ctx context.Context, args []string) error
	Protect(ctx context.Context, args []string) error
	Unprotect(ctx context.Context, args []string) error
	Tag(ctx context.Context, args []string) error
	Tags(ctx context.Context, args []string) error
	Chat(ctx context.Context, args []string) error

	Sync(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
	Conflicts(ctx context.Context, args []string) error
	Resolve(ctx context.Context, args []string) error
	Unlock(ctx context.Context, args []string) error
	Lock(ctx context.Context, args []string) error
	Encryption(ctx context.Context, args []string) error
	Set(ctx context.Context, args []string) error
}

const helpText = `Notes:
  new                              create a note
  list [all|archived]              list notes
  show <id>                        print a note
  edit <id>                        change title and body
  delete <id>                      delete a note
  archive <id> | unarchive <id>    move a note in or out of the archive
  protect <id> | unprotect <id>    lock a note body behind a password
  tag <id> [name...]               replace the tags of a note
  tags [add <name> [color] | rename <id> <name> | rm <id>]
  chat <id>                        attach a conversation to a note
Sync:
  sync                             synchronize now
  status                           show sync state
  conflicts                        list unresolved conflicts
  resolve <id> local|remote|manual resolve a conflict
  unlock | lock                    cache or forget the encryption passphrase
  encryption on|off                toggle end-to-end encryption
  set autosync|startup on|off      sync preferences
  exit | quit                      leave the program`

const accountHelpText = `Account:
  register                         create a relay account
  login                            authenticate with the relay
  logout                           forget the account on this device`

// runREPL starts a read–eval–print loop over reader.
//
// The first word of each line selects the command; the rest are passed as
// arguments. Errors are printed and the loop continues. It exits on EOF or
// when the user types "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("ns %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			printlnFn(helpText)
			if a.hasAccount() {
				printlnFn(accountHelpText)
			}

		case "register":
			cmdErr = a.Register(ctx, args)
		case "login":
			cmdErr = a.Login(ctx, args)
		case "logout":
			cmdErr = a.Logout(ctx, args)

		case "new":
			cmdErr = a.New(ctx, args)
		case "l", "list":
			cmdErr = a.List(ctx, args)
		case "show":
			cmdErr = a.Show(ctx, args)
		case "edit":
			cmdErr = a.Edit(ctx, args)
		case "delete", "rm":
			cmdErr = a.Delete(ctx, args)
		case "archive":
			cmdErr = a.Archive(ctx, append([]string{"on"}, args...))
		case "unarchive":
			cmdErr = a.Archive(ctx, append([]string{"off"}, args...))
		case "protect":
			cmdErr = a.Protect(ctx, args)
		case "unprotect":
			cmdErr = a.Unprotect(ctx, args)
		case "tag":
			cmdErr = a.Tag(ctx, args)
		case "tags":
			cmdErr = a.Tags(ctx, args)
		case "chat":
			cmdErr = a.Chat(ctx, args)

		case "sync":
			cmdErr = a.Sync(ctx, args)
		case "status":
			cmdErr = a.Status(ctx, args)
		case "conflicts":
			cmdErr = a.Conflicts(ctx, args)
		case "resolve":
			cmdErr = a.Resolve(ctx, args)
		case "unlock":
			cmdErr = a.Unlock(ctx, args)
		case "lock":
			cmdErr = a.Lock(ctx, args)
		case "encryption":
			cmdErr = a.Encryption(ctx, args)
		case "set":
			cmdErr = a.Set(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		switch {
		case cmdErr == nil:
		case errors.Is(cmdErr, errUsage):
			printlnFn(cmdErr.Error())
		default:
			printlnFn("Error:", cmdErr)
		}
	}
}

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}
