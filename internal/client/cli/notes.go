package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
)

const shortIDLen = 8

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

// resolveNoteID expands an ID prefix to a full note ID.
func (a *App) resolveNoteID(ctx context.Context, prefix string) (string, error) {
	notes, err := a.notes.List(ctx)
	if err != nil {
		return "", err
	}
	var found []string
	for _, n := range notes {
		if n.ID == prefix {
			return n.ID, nil
		}
		if strings.HasPrefix(n.ID, prefix) {
			found = append(found, n.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("note %s: %w", prefix, common.ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: id prefix %s is ambiguous", common.ErrValidation, prefix)
	}
}

func (a *App) noteArg(ctx context.Context, cmd string, args []string) (string, error) {
	if len(args) == 0 {
		return "", usage("%s <id>", cmd)
	}
	return a.resolveNoteID(ctx, args[0])
}

// tagIDs maps tag names to IDs, creating missing tags.
func (a *App) tagIDs(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	tags, err := a.notes.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(tags))
	for _, t := range tags {
		byName[strings.ToLower(t.Name)] = t.ID
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		if id, ok := byName[strings.ToLower(name)]; ok {
			ids = append(ids, id)
			continue
		}
		t, err := a.notes.CreateTag(ctx, name, "")
		if err != nil {
			return nil, err
		}
		byName[strings.ToLower(name)] = t.ID
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (a *App) tagNames(ctx context.Context) (map[string]string, error) {
	tags, err := a.notes.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(tags))
	for _, t := range tags {
		names[t.ID] = t.Name
	}
	return names, nil
}

func splitTags(s string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// New prompts for a title, a body and optional tags.
func (a *App) New(ctx context.Context, _ []string) error {
	title, err := getSimpleText(a.reader, "Title", a.out)
	if err != nil {
		return err
	}
	body, err := getMultiline(a.reader, "Note text", a.out)
	if err != nil {
		return err
	}
	tags, err := getSimpleText(a.reader, "Tags (comma separated, optional)", a.out)
	if err != nil {
		return err
	}
	ids, err := a.tagIDs(ctx, splitTags(tags))
	if err != nil {
		return err
	}

	n, err := a.notes.Create(ctx, title, body, ids)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Created", shortID(n.ID))
	return nil
}

// List prints notes, newest first. Archived notes are hidden unless "all" or
// "archived" is given.
func (a *App) List(ctx context.Context, args []string) error {
	filter := ""
	if len(args) > 0 {
		filter = args[0]
	}
	if filter != "" && filter != "all" && filter != "archived" {
		return usage("list [all|archived]")
	}

	notes, err := a.notes.List(ctx)
	if err != nil {
		return err
	}
	names, err := a.tagNames(ctx)
	if err != nil {
		return err
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Modified.After(notes[j].Modified) })

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODIFIED\tTITLE\tFLAGS\tTAGS")
	for _, n := range notes {
		switch {
		case filter == "" && n.IsArchived:
			continue
		case filter == "archived" && !n.IsArchived:
			continue
		}
		var flags []string
		if n.IsArchived {
			flags = append(flags, "archived")
		}
		if n.PasswordProtected {
			flags = append(flags, "locked")
		}
		tags := make([]string, 0, len(n.Tags))
		for _, id := range n.Tags {
			tags = append(tags, names[id])
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", shortID(n.ID), n.Modified.Local().Format(time.DateTime),
			n.Title, strings.Join(flags, ","), strings.Join(tags, ","))
	}
	return w.Flush()
}

// Show prints a note. Protected notes ask for their password.
func (a *App) Show(ctx context.Context, args []string) error {
	id, err := a.noteArg(ctx, "show", args)
	if err != nil {
		return err
	}
	n, err := a.notes.Get(ctx, id)
	if err != nil {
		return err
	}

	body := n.Content
	if n.PasswordProtected {
		pw, err := getSecret(a.out, "Note password")
		if err != nil {
			return err
		}
		defer common.WipeByteArray(pw)
		if body, err = a.notes.Reveal(ctx, id, pw); err != nil {
			return err
		}
	}

	names, err := a.tagNames(ctx)
	if err != nil {
		return err
	}
	tags := make([]string, 0, len(n.Tags))
	for _, t := range n.Tags {
		tags = append(tags, names[t])
	}

	fmt.Fprintf(a.out, "%s\n%s\n", n.Title, strings.Repeat("-", len([]rune(n.Title))))
	fmt.Fprintf(a.out, "id: %s  modified: %s\n", n.ID, n.Modified.Local().Format(time.DateTime))
	if len(tags) > 0 {
		fmt.Fprintf(a.out, "tags: %s\n", strings.Join(tags, ", "))
	}
	if n.Share != nil {
		fmt.Fprintf(a.out, "shared: %s %s\n", n.Share.Provider, n.Share.URL)
	}
	fmt.Fprintf(a.out, "\n%s\n", body)

	convs, err := a.notes.ListConversations(ctx, id)
	if err != nil {
		return err
	}
	for _, c := range convs {
		fmt.Fprintf(a.out, "\n[%s %s]\n> %s\n%s\n", c.Kind, c.CreatedAt.Local().Format(time.DateTime), c.UserMessage, c.AIResponse)
	}
	return nil
}

// Edit replaces title and body; an empty answer keeps the current value.
func (a *App) Edit(ctx context.Context, args []string) error {
	id, err := a.noteArg(ctx, "edit", args)
	if err != nil {
		return err
	}
	n, err := a.notes.Get(ctx, id)
	if err != nil {
		return err
	}
	if n.PasswordProtected {
		return fmt.Errorf("%w: unprotect the note first", common.ErrValidation)
	}

	title, err := getSimpleText(a.reader, fmt.Sprintf("Title [%s]", n.Title), a.out)
	if err != nil {
		return err
	}
	if title == "" {
		title = n.Title
	}
	body, err := getMultiline(a.reader, "Note text (empty keeps the current text)", a.out)
	if err != nil {
		return err
	}
	if body == "" {
		body = n.Content
	}

	_, err = a.notes.Update(ctx, id, title, body)
	return err
}

func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := a.noteArg(ctx, "delete", args)
	if err != nil {
		return err
	}
	if err := a.notes.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Deleted", shortID(id))
	return nil
}

// Archive expects "on" or "off" followed by the note ID.
func (a *App) Archive(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("archive <id> | unarchive <id>")
	}
	id, err := a.resolveNoteID(ctx, args[1])
	if err != nil {
		return err
	}
	return a.notes.SetArchived(ctx, id, args[0] == "on")
}

func (a *App) Protect(ctx context.Context, args []string) error {
	id, err := a.noteArg(ctx, "protect", args)
	if err != nil {
		return err
	}
	pw, err := a.newSecret("Note password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)
	return a.notes.Protect(ctx, id, pw)
}

func (a *App) Unprotect(ctx context.Context, args []string) error {
	id, err := a.noteArg(ctx, "unprotect", args)
	if err != nil {
		return err
	}
	pw, err := getSecret(a.out, "Note password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)
	return a.notes.Unprotect(ctx, id, pw)
}

// newSecret asks for a secret twice.
func (a *App) newSecret(prompt string) ([]byte, error) {
	first, err := getSecret(a.out, prompt)
	if err != nil {
		return nil, err
	}
	second, err := getSecret(a.out, "Repeat "+strings.ToLower(prompt))
	if err != nil {
		common.WipeByteArray(first)
		return nil, err
	}
	defer common.WipeByteArray(second)
	if string(first) != string(second) {
		common.WipeByteArray(first)
		return nil, fmt.Errorf("%w: entries do not match", common.ErrValidation)
	}
	return first, nil
}

// Tag replaces the tags of a note; missing tags are created.
func (a *App) Tag(ctx context.Context, args []string) error {
	id, err := a.noteArg(ctx, "tag", args)
	if err != nil {
		return err
	}
	ids, err := a.tagIDs(ctx, args[1:])
	if err != nil {
		return err
	}
	return a.notes.SetTags(ctx, id, ids)
}

func (a *App) Tags(ctx context.Context, args []string) error {
	if len(args) == 0 {
		tags, err := a.notes.ListTags(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCOLOR")
		for _, t := range tags {
			fmt.Fprintf(w, "%s\t%s\t%s\n", shortID(t.ID), t.Name, t.Color)
		}
		return w.Flush()
	}

	switch args[0] {
	case "add":
		if len(args) < 2 {
			return usage("tags add <name> [color]")
		}
		color := ""
		if len(args) > 2 {
			color = args[2]
		}
		_, err := a.notes.CreateTag(ctx, args[1], color)
		return err
	case "rename":
		if len(args) < 3 {
			return usage("tags rename <id> <name>")
		}
		id, err := a.resolveTagID(ctx, args[1])
		if err != nil {
			return err
		}
		return a.notes.RenameTag(ctx, id, args[2])
	case "rm":
		if len(args) < 2 {
			return usage("tags rm <id>")
		}
		id, err := a.resolveTagID(ctx, args[1])
		if err != nil {
			return err
		}
		return a.notes.DeleteTag(ctx, id)
	default:
		return usage("tags [add <name> [color] | rename <id> <name> | rm <id>]")
	}
}

func (a *App) resolveTagID(ctx context.Context, prefix string) (string, error) {
	tags, err := a.notes.ListTags(ctx)
	if err != nil {
		return "", err
	}
	var found []string
	for _, t := range tags {
		if t.ID == prefix {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, prefix) {
			found = append(found, t.ID)
		}
	}
	if len(found) != 1 {
		return "", fmt.Errorf("tag %s: %w", prefix, common.ErrNotFound)
	}
	return found[0], nil
}

// Chat records a question and answer pair on a note.
func (a *App) Chat(ctx context.Context, args []string) error {
	id, err := a.noteArg(ctx, "chat", args)
	if err != nil {
		return err
	}
	q, err := getMultiline(a.reader, "Question", a.out)
	if err != nil {
		return err
	}
	ans, err := getMultiline(a.reader, "Answer", a.out)
	if err != nil {
		return err
	}
	if q == "" {
		return errors.New("empty question")
	}
	_, err = a.notes.AddConversation(ctx, id, q, ans, "chat")
	return err
}

func noteTitle(n *models.Note) string {
	if n == nil {
		return "(deleted)"
	}
	if n.Title == "" {
		return "(untitled)"
	}
	return n.Title
}
