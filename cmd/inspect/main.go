// Command inspect prints the participants and conversations persisted in a
// data directory without starting the server.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"marketchat/persistence"
	"marketchat/store"
)

func main() {
	dataDir := flag.String("data", "data", "Path to the persisted state directory")
	withMessages := flag.Bool("messages", false, "Also print every message line")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	directory := store.NewDirectory()
	conversations := store.NewConversationStore()
	files := persistence.NewFileStore(*dataDir, logger)
	if err := files.Load(directory, conversations); err != nil {
		log.Fatalf("loading %s: %v", *dataDir, err)
	}

	banner := color.New(color.BgBlack, color.FgGreen).Render(
		fmt.Sprintf(" %s — %d participants, %d conversations ",
			*dataDir, len(directory.All()), len(conversations.All())))
	fmt.Println(banner)

	users := tablewriter.NewWriter(os.Stdout)
	users.SetHeader([]string{"Email", "Role", "Name", "Stores", "Blocked", "Invisible To"})
	users.SetAutoWrapText(false)
	users.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	users.SetAlignment(tablewriter.ALIGN_LEFT)
	users.SetCenterSeparator("")
	users.SetColumnSeparator("")
	users.SetRowSeparator("")
	users.SetHeaderLine(false)
	users.SetBorder(false)
	users.SetTablePadding("\t")
	for _, p := range directory.All() {
		users.Append([]string{
			p.Email(),
			p.Role().String(),
			p.Name(),
			strconv.Itoa(len(p.Stores())),
			strconv.Itoa(len(p.BlockedEmails())),
			strconv.Itoa(len(p.InvisibleTo())),
		})
	}
	users.Render()

	fmt.Println()

	convos := tablewriter.NewWriter(os.Stdout)
	convos.SetHeader([]string{"File", "Seller", "Customer", "Store", "Disappearing", "Messages"})
	convos.SetAutoWrapText(false)
	convos.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	convos.SetAlignment(tablewriter.ALIGN_LEFT)
	convos.SetCenterSeparator("")
	convos.SetColumnSeparator("")
	convos.SetRowSeparator("")
	convos.SetHeaderLine(false)
	convos.SetBorder(false)
	convos.SetTablePadding("\t")
	for _, c := range conversations.All() {
		convos.Append([]string{
			persistence.ConversationFileName(c.Customer().Email(), c.Seller().Email(), c.Store()),
			c.Seller().Email(),
			c.Customer().Email(),
			c.Store(),
			strconv.FormatBool(c.Disappearing()),
			strconv.Itoa(c.Len()),
		})
	}
	convos.Render()

	if !*withMessages {
		return
	}

	for _, c := range conversations.All() {
		fmt.Println()
		fmt.Println(color.New(color.FgCyan).Render(
			fmt.Sprintf("%s ↔ %s [%s]", c.Seller().Email(), c.Customer().Email(), c.Store())))
		for _, m := range c.Messages() {
			at := time.UnixMilli(m.SentAt).Format("2006-01-02 15:04:05.000")
			fmt.Printf("  %s  %s: %s\n", at, m.SenderEmail, m.Content)
		}
	}
}
