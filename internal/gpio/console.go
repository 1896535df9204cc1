package gpio

import (
	"bufio"
	"io"
	"sync"
	"time"
	"unicode"

	"github.com/sweeney/photobooth/internal/logger"
)

// ConsoleKeys maps keyboard letters to input lines.
type ConsoleKeys map[rune]int

// DefaultConsoleKeys binds p, g, x and i to the given photo, gif, print and
// info lines.
func DefaultConsoleKeys(photo, gif, print, info int) ConsoleKeys {
	return ConsoleKeys{'p': photo, 'g': gif, 'x': print, 'i': info}
}

// QuitKey requests a close from the console.
const QuitKey = 'q'

// ConsoleSource turns key presses read from r into edges, for bench use
// without a button panel. Ticks are measured from construction.
type ConsoleSource struct {
	keys  ConsoleKeys
	edges chan Edge
	quit  chan struct{}
	start time.Time

	quitOnce sync.Once
}

// NewConsoleSource starts reading r. Reading stops at EOF.
func NewConsoleSource(r io.Reader, keys ConsoleKeys) *ConsoleSource {
	c := &ConsoleSource{
		keys:  keys,
		edges: make(chan Edge, EdgeBuffer),
		quit:  make(chan struct{}),
		start: time.Now(),
	}
	go c.read(bufio.NewReader(r))
	return c
}

func (c *ConsoleSource) read(r *bufio.Reader) {
	log := logger.WithComponent("console")
	for {
		ch, _, err := r.ReadRune()
		if err != nil {
			if err != io.EOF {
				log.Warn().Err(err).Msg("console read failed")
			}
			return
		}
		ch = unicode.ToLower(ch)
		if unicode.IsSpace(ch) {
			continue
		}
		if ch == QuitKey {
			c.quitOnce.Do(func() { close(c.quit) })
			continue
		}
		line, ok := c.keys[ch]
		if !ok {
			log.Debug().Str("key", string(ch)).Msg("unbound key")
			continue
		}
		select {
		case c.edges <- Edge{Line: line, Tick: time.Since(c.start)}:
		default:
			log.Warn().Int("line", line).Msg("edge buffer full, dropping key")
		}
	}
}

func (c *ConsoleSource) Edges() <-chan Edge {
	return c.edges
}

// Quit is closed when the quit key is pressed.
func (c *ConsoleSource) Quit() <-chan struct{} {
	return c.quit
}

// Close is a no-op; a pending read on the underlying reader cannot be
// interrupted and ends with the process.
func (c *ConsoleSource) Close() error {
	return nil
}
