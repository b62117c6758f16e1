package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Alwanly/lunch-match-sync/internal/client/usecase"
	"github.com/Alwanly/lunch-match-sync/internal/models"
)

// printer writes watch notifications as human-readable lines.
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	seen map[int64]int
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, seen: make(map[int64]int)}
}

func (p *printer) line(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s  "+format+"\n", append([]interface{}{time.Now().Format("15:04:05")}, args...)...)
}

func (p *printer) MatchFound(state models.MatchState) {
	id, _ := state.ID()
	partner := "someone"
	if state.Partner != nil {
		partner = state.Partner.Name
	}
	p.line("matched with %s (match %d)", partner, id)
}

// NewMessages prints only the messages not printed before for the match.
func (p *printer) NewMessages(matchID int64, messages []models.Message) {
	p.mu.Lock()
	from := p.seen[matchID]
	if from > len(messages) {
		from = 0
	}
	p.seen[matchID] = len(messages)
	p.mu.Unlock()

	for _, m := range messages[from:] {
		p.line("[%d] %s: %s", matchID, m.SenderID, m.Body)
	}
}

func (p *printer) MatchCanceled(matchID int64) {
	p.mu.Lock()
	delete(p.seen, matchID)
	p.mu.Unlock()
	p.line("match %d ended, looking again", matchID)
}

func (p *printer) PollError(poller string, err error) {
	p.line("%s poll failed: %v", poller, err)
}

var _ usecase.Listener = (*printer)(nil)
