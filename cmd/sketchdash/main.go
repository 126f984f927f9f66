package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sketchdash/client/internal/builder"
	appcfg "github.com/sketchdash/client/internal/config"
	"github.com/sketchdash/client/internal/game"
	"github.com/sketchdash/client/internal/obslog"
	"github.com/sketchdash/client/internal/store"
)

func main() {
	roomCode := flag.String("room", "", "room code to join")
	name := flag.String("name", "", "display name")
	avatar := flag.String("avatar", "", "avatar URL (optional)")
	create := flag.Bool("create", false, "create the room before joining")
	flag.Parse()

	if *roomCode == "" || *name == "" {
		fmt.Fprintln(os.Stderr, "usage: sketchdash -room CODE -name NAME [-create] [-avatar URL]")
		os.Exit(2)
	}

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := builder.New(ctx, cfg, obslog.L())
	if err != nil {
		log.Fatalf("init error: %v", err)
	}
	defer deps.Close(context.Background())

	profile := store.Profile{
		ID:     uuid.NewString(),
		Name:   *name,
		Avatar: *avatar,
	}

	if *create {
		if _, err := deps.Store.Create(ctx, *roomCode, profile.ID, int(cfg.RoundDuration/time.Second)); err != nil {
			if !errors.Is(err, store.ErrRoomExists) {
				log.Fatalf("create room error: %v", err)
			}
			fmt.Printf("room %s already exists, joining\n", *roomCode)
		}
	}

	opts := game.Options{
		RoundDuration: cfg.RoundDuration,
		SettleDelay:   cfg.SettleDelay,
		MinPlayers:    cfg.MinPlayers,
		GuessAward:    cfg.GuessAward,
		Checkpoints:   cfg.Checkpoints,
	}
	session, err := game.Open(ctx, deps.GameDeps(), opts, *roomCode, profile)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			log.Fatalf("room %s does not exist (use -create)", *roomCode)
		}
		log.Fatalf("join error: %v", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = session.Close(cctx)
	}()

	go func() {
		for n := range session.Notices() {
			fmt.Printf("[%s] %s\n", n.Level, n.Text)
		}
	}()

	fmt.Printf("joined %s as %s (%s)\n", *roomCode, profile.Name, profile.ID)
	fmt.Println("commands: start | topics | pick N | guess TEXT | draw PATH | erase PATH | clear | next | status | quit")

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nbye")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := dispatch(ctx, session, line); quit {
				return
			}
		}
	}
}

func dispatch(ctx context.Context, s *game.Session, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, rest := fields[0], strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	var err error
	switch cmd {
	case "quit", "exit":
		return true
	case "start":
		err = s.StartRound(ctx)
	case "topics":
		for _, id := range s.TopicOffer() {
			fmt.Printf("  %d\n", id)
		}
	case "pick":
		var id int
		if id, err = strconv.Atoi(rest); err == nil {
			err = s.ChooseTopic(ctx, id)
		}
	case "guess":
		err = s.SubmitGuess(ctx, rest)
	case "draw":
		err = s.Draw(ctx, rest, false)
	case "erase":
		err = s.Draw(ctx, rest, true)
	case "clear":
		err = s.ClearCanvas(ctx)
	case "next":
		err = s.AcknowledgeReview(ctx)
	case "status":
		printStatus(s)
	default:
		fmt.Printf("unknown command %q\n", cmd)
	}
	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
	return false
}

func printStatus(s *game.Session) {
	room := s.Room()
	fmt.Printf("state=%s room=%s host=%s remaining=%ds\n", s.State(), room.Code, room.HostID, s.Remaining())
	for _, m := range s.Members() {
		mark := " "
		if m.Connected {
			mark = "*"
		}
		fmt.Printf("  %s %s score=%d\n", mark, m.Profile.Name, m.Membership.Score)
	}
	for _, g := range s.Transcript() {
		flag := ""
		if g.Pending {
			flag = " (pending)"
		}
		if g.Failed {
			flag = " (failed)"
		}
		fmt.Printf("  %s: %s%s\n", g.ProfileID, g.Text, flag)
	}
}
