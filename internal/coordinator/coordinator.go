// Package coordinator owns process lifecycle: binding one listener
// per distinct (host, port) pair across every configured virtual server,
// running the reactor's event loop, and tearing everything down cleanly on
// a termination signal.
package coordinator

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/logging"
	"github.com/nginx-go/httpd/internal/reactor"
)

type endpoint struct {
	host       string
	port       int
	backlog    int
	candidates []*config.ServerConfig
}

// Coordinator owns the reactor and the signal handling around its run loop.
type Coordinator struct {
	r *reactor.Reactor
}

// New builds a coordinator from parsed server configs, binding one listener
// per distinct (host, port) concurrently via errgroup.
func New(servers []*config.ServerConfig) (*Coordinator, error) {
	r, err := reactor.New()
	if err != nil {
		return nil, errors.Wrap(err, "coordinator: create reactor")
	}

	endpoints := groupByAddr(servers)

	var g errgroup.Group
	for _, ep := range endpoints {
		ep := ep
		g.Go(func() error {
			return r.AddListener(ep.host, ep.port, ep.backlog, ep.candidates)
		})
	}
	if err := g.Wait(); err != nil {
		r.Close()
		return nil, errors.Wrap(err, "coordinator: bind listeners")
	}

	return &Coordinator{r: r}, nil
}

func groupByAddr(servers []*config.ServerConfig) []endpoint {
	order := []endpoint{}
	index := map[string]int{}
	for _, s := range servers {
		key := s.Host + ":" + itoaPort(s.Port)
		if i, ok := index[key]; ok {
			order[i].candidates = append(order[i].candidates, s)
			continue
		}
		index[key] = len(order)
		order = append(order, endpoint{
			host:       s.Host,
			port:       s.Port,
			backlog:    128,
			candidates: []*config.ServerConfig{s},
		})
	}
	return order
}

func itoaPort(p int) string {
	if p == 0 {
		return "0"
	}
	neg := p < 0
	if neg {
		p = -p
	}
	var buf [8]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = byte('0' + p%10)
		p /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Run installs signal handling (SIGINT/SIGTERM trigger graceful shutdown;
// SIGPIPE, SIGQUIT, SIGTSTP are ignored) and blocks until the reactor
// stops.
func (c *Coordinator) Run() error {
	signal.Ignore(syscall.SIGPIPE, syscall.SIGQUIT, syscall.SIGTSTP)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() {
		runErr <- c.r.Run()
	}()

	select {
	case <-ctx.Done():
		logging.Log.Info("coordinator: shutdown signal received")
		c.r.Stop()
		<-runErr
		return c.shutdown()
	case err := <-runErr:
		teardownErr := c.shutdown()
		if err != nil {
			return err
		}
		return teardownErr
	}
}

func (c *Coordinator) shutdown() error {
	return c.r.Close()
}
