package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/haukened/linkguard/internal/linking/domain"
)

const consoleHelp = `commands:
  join <name> [uuid]            connect a player through every stage
  move <name> <x> <y> <z> [world]
  chat <name> <message...>
  cmd <name> <command line...>
  quit <name>
  link <name> <discord id>      link directly in the store
  unlink <name>
  redeem <code> <discord id>    redeem a linking code
  recheck <name>
  status
  help`

var errUsage = errors.New("usage")

// console drives the host from a line protocol and prints everything the
// host shows to players. Output may arrive from query goroutines.
type console struct {
	app *Application
	in  io.Reader

	mu  sync.Mutex
	out io.Writer
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: in, out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Deliver prints a message shown to a player.
func (c *console) Deliver(to domain.UserIdentity, text string) {
	c.printf("[%s] %s", to.Name, text)
}

// Disconnected prints a disconnect.
func (c *console) Disconnected(who domain.UserIdentity, reason string) {
	if reason == "" {
		c.printf("* %s left", who.Name)
		return
	}
	c.printf("* %s disconnected: %s", who.Name, reason)
}

// serve reads commands until EOF or ctx ends.
func (c *console) serve(ctx context.Context) error {
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := c.exec(ctx, line); err != nil {
			if errors.Is(err, errUsage) {
				c.printf("! %v (try help)", err)
				continue
			}
			c.printf("! %v", err)
		}
	}
	return sc.Err()
}

// offlineID derives a stable identity for a name without an account service.
func offlineID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("OfflinePlayer:"+name))
}

func (c *console) player(name string) (domain.UserIdentity, error) {
	for _, p := range c.app.server.Online() {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return domain.UserIdentity{}, fmt.Errorf("%s is not online", name)
}

func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	verb, args := strings.ToLower(fields[0]), fields[1:]
	rest := func(n int) string {
		parts := strings.SplitN(line, " ", n+1)
		if len(parts) <= n {
			return ""
		}
		return strings.TrimSpace(parts[n])
	}

	switch verb {
	case "help":
		c.printf("%s", consoleHelp)
		return nil

	case "join":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("%w: join <name> [uuid]", errUsage)
		}
		id := offlineID(args[0])
		if len(args) == 2 {
			parsed, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("bad uuid: %w", err)
			}
			id = parsed
		}
		user, err := domain.NewUserIdentity(id, args[0])
		if err != nil {
			return err
		}
		spawn := domain.Location{World: "world", Pos: mgl64.Vec3{0.5, 64, 0.5}}
		attempt, err := c.app.server.Connect(ctx, user, spawn)
		if err != nil {
			return err
		}
		if reason, denied := attempt.Denied(); denied {
			c.printf("* %s refused at %s: %s", user.Name, attempt.Phase, reason)
			return nil
		}
		c.printf("* %s joined", user.Name)
		return nil

	case "move":
		if len(args) < 4 || len(args) > 5 {
			return fmt.Errorf("%w: move <name> <x> <y> <z> [world]", errUsage)
		}
		user, err := c.player(args[0])
		if err != nil {
			return err
		}
		var pos mgl64.Vec3
		for i := 0; i < 3; i++ {
			if pos[i], err = strconv.ParseFloat(args[i+1], 64); err != nil {
				return fmt.Errorf("bad coordinate %q: %w", args[i+1], err)
			}
		}
		cur, _ := c.app.server.Location(user.ID)
		dest := domain.Location{World: cur.World, Pos: pos, Yaw: cur.Yaw, Pitch: cur.Pitch}
		if len(args) == 5 {
			dest.World = args[4]
		}
		end, err := c.app.server.Move(user, dest)
		if err != nil {
			return err
		}
		c.printf("* %s at %s %.2f %.2f %.2f", user.Name, end.World, end.Pos.X(), end.Pos.Y(), end.Pos.Z())
		return nil

	case "chat":
		msg := rest(2)
		if len(args) < 2 || msg == "" {
			return fmt.Errorf("%w: chat <name> <message...>", errUsage)
		}
		user, err := c.player(args[0])
		if err != nil {
			return err
		}
		_, err = c.app.server.Chat(user, msg)
		return err

	case "cmd":
		cmdline := rest(2)
		if len(args) < 2 || cmdline == "" {
			return fmt.Errorf("%w: cmd <name> <command line...>", errUsage)
		}
		user, err := c.player(args[0])
		if err != nil {
			return err
		}
		cancelled, err := c.app.server.Command(user, cmdline)
		if err != nil {
			return err
		}
		if !cancelled {
			c.printf("* %s ran %s", user.Name, cmdline)
		}
		return nil

	case "quit":
		if len(args) != 1 {
			return fmt.Errorf("%w: quit <name>", errUsage)
		}
		user, err := c.player(args[0])
		if err != nil {
			return err
		}
		c.app.server.Quit(user)
		return nil

	case "link":
		if len(args) != 2 {
			return fmt.Errorf("%w: link <name> <discord id>", errUsage)
		}
		id := offlineID(args[0])
		if p, err := c.player(args[0]); err == nil {
			id = p.ID
		}
		if err := c.app.store.Link(id, args[1]); err != nil {
			return err
		}
		c.printf("* linked %s to %s", args[0], args[1])
		return nil

	case "unlink":
		if len(args) != 1 {
			return fmt.Errorf("%w: unlink <name>", errUsage)
		}
		id := offlineID(args[0])
		if p, err := c.player(args[0]); err == nil {
			id = p.ID
		}
		if err := c.app.store.Unlink(id); err != nil {
			return err
		}
		c.printf("* unlinked %s", args[0])
		return nil

	case "redeem":
		if len(args) != 2 {
			return fmt.Errorf("%w: redeem <code> <discord id>", errUsage)
		}
		id, err := c.app.store.Redeem(args[0], args[1], time.Now())
		if err != nil {
			return err
		}
		c.printf("* code %s redeemed for %s", args[0], id)
		return nil

	case "recheck":
		if len(args) != 1 {
			return fmt.Errorf("%w: recheck <name>", errUsage)
		}
		user, err := c.player(args[0])
		if err != nil {
			return err
		}
		if !c.app.engine.RecheckID(ctx, user.ID) {
			return fmt.Errorf("recheck of %s not started", user.Name)
		}
		return nil

	case "status":
		st := c.app.store.Stats()
		p := c.app.holder.Policy()
		c.printf("online=%d links=%d pending=%d enabled=%t action=%s kick=%s",
			len(c.app.server.Online()), st.Links, st.Pending, p.Enabled, p.Action, p.KickStage)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, verb)
}
