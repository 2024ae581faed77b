package toxclient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/config"
	"github.com/opd-ai/toxclient/engine"
	"github.com/opd-ai/toxclient/factory"
	"github.com/opd-ai/toxclient/file"
	"github.com/opd-ai/toxclient/friend"
	"github.com/opd-ai/toxclient/messaging"
)

var (
	// ErrProfileLoad indicates a saved profile that could not be read or decoded.
	ErrProfileLoad = errors.New("profile could not be loaded")

	// ErrEngineCreate indicates the engine could not be constructed.
	ErrEngineCreate = errors.New("engine could not be created")

	// ErrStoreOpen indicates the message store could not be opened.
	ErrStoreOpen = errors.New("message store could not be opened")

	// ErrNotRunning is returned by commands issued outside the Running state.
	ErrNotRunning = errors.New("client is not running")

	// ErrAlreadyStarted is returned by a second Start or Run.
	ErrAlreadyStarted = errors.New("client already started")
)

// State is the session lifecycle position.
type State int32

const (
	StateUninitialized State = iota
	StateProfileResolved
	StateEngineCreated
	StateRunning
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateProfileResolved:
		return "profile_resolved"
	case StateEngineCreated:
		return "engine_created"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// storeTimeout bounds each message store call made from the loop.
const storeTimeout = 5 * time.Second

// commandQueueSize is the number of commands that may wait for the next tick.
const commandQueueSize = 64

// StoreOpener opens the message store of a profile.
type StoreOpener func(ctx context.Context, path string) (messaging.Store, error)

func openSQLite(ctx context.Context, path string) (messaging.Store, error) {
	return messaging.OpenSQLite(ctx, path)
}

// Options configure a Client.
type Options struct {
	// Config is required. It is saved back on shutdown.
	Config *config.Config
	// Profile selects a saved profile by name. Empty means the last used
	// profile, or a new one when there is none.
	Profile string
	// Factory defaults to one following Config.UseSimulation.
	Factory *factory.EngineFactory
	// OpenStore defaults to the SQLite store.
	OpenStore StoreOpener
	// Notifier receives presentation updates. Optional.
	Notifier Notifier
	// TimeProvider is the clock for transfer activity tracking. Optional.
	TimeProvider file.TimeProvider
}

// Client is one running session. Fields below the loop comment are only
// touched by the loop goroutine once Start has returned.
type Client struct {
	cfg        *config.Config
	factory    *factory.EngineFactory
	openStore  StoreOpener
	notifier   Notifier
	profileArg string

	state   atomic.Int32
	mu      sync.Mutex
	looping bool

	profile    string
	newProfile bool
	eng        engine.Engine
	selfKey    engine.PublicKey
	store      messaging.Store
	transfers  *file.Manager
	friends    *friend.Directory
	requests   *friend.RequestManager

	commands     chan func()
	stop         chan struct{}
	loopDone     chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error

	// loop
	connection       engine.ConnectionStatus
	bootstrapErr     error
	openConversation uint32
	conversationOpen bool
}

// New validates opts and returns an unstarted client.
func New(opts Options) (*Client, error) {
	if opts.Config == nil {
		return nil, errors.New("toxclient: options need a config")
	}
	if opts.Factory == nil {
		opts.Factory = factory.NewEngineFactory(opts.Config.UseSimulation)
	}
	if opts.OpenStore == nil {
		opts.OpenStore = openSQLite
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}

	return &Client{
		cfg:        opts.Config,
		factory:    opts.Factory,
		openStore:  opts.OpenStore,
		notifier:   opts.Notifier,
		profileArg: opts.Profile,
		transfers:  file.NewManagerWithTimeProvider(opts.TimeProvider),
		friends:    friend.NewDirectory(),
		requests:   friend.NewRequestManager(),
		commands:   make(chan func(), commandQueueSize),
		stop:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	logrus.WithFields(logrus.Fields{
		"function": "setState",
		"from":     prev,
		"to":       s,
	}).Debug("Session state changed")
}

// Profile returns the resolved profile name.
func (c *Client) Profile() string {
	return c.profile
}

// SelfPublicKey returns the local identity. Zero before the engine exists.
func (c *Client) SelfPublicKey() engine.PublicKey {
	return c.selfKey
}

// Friends exposes the friend directory for read access.
func (c *Client) Friends() *friend.Directory {
	return c.friends
}

// Transfers exposes the transfer table for read access.
func (c *Client) Transfers() *file.Manager {
	return c.transfers
}

// Start resolves the profile, creates the engine, opens the message store,
// loads the friend list and bootstraps. Handlers are in place before the
// bootstrap call. Any returned error is fatal; the client is left
// Terminated and holds no resources.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != StateUninitialized {
		return ErrAlreadyStarted
	}

	if err := c.start(ctx); err != nil {
		c.abortStart()
		c.setState(StateTerminated)
		logrus.WithFields(logrus.Fields{
			"function": "Start",
			"profile":  c.profile,
			"error":    err.Error(),
		}).Error("Startup failed")
		return err
	}
	return nil
}

func (c *Client) start(ctx context.Context) error {
	saveData, err := c.resolveProfile()
	if err != nil {
		return err
	}
	c.setState(StateProfileResolved)

	opts := c.cfg.EngineOptions()
	opts.SaveData = saveData
	eng, err := c.factory.Create(opts)
	if err != nil {
		if errors.Is(err, engine.ErrLoad) {
			return fmt.Errorf("%w: %s: %w", ErrProfileLoad, c.profile, err)
		}
		return fmt.Errorf("%w: %w", ErrEngineCreate, err)
	}
	c.eng = eng
	c.selfKey = eng.SelfPublicKey()
	c.setState(StateEngineCreated)

	logrus.WithFields(logrus.Fields{
		"function":   "Start",
		"profile":    c.profile,
		"public_key": c.selfKey.Short(),
		"new":        c.newProfile,
	}).Info("Engine created")

	if c.newProfile {
		if err := c.saveProfile(); err != nil {
			return err
		}
	}

	store, err := c.openStore(ctx, DatabasePath(c.cfg.DataDir, c.profile))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreOpen, err)
	}
	c.store = store

	for _, dir := range []string{c.avatarDir(), c.cfg.DownloadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	c.friends.OnChange(c.onFriendChange)
	c.loadFriends()

	c.bootstrap()
	c.setState(StateRunning)

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"profile":  c.profile,
		"friends":  c.friends.Len(),
		"address":  eng.SelfAddress(),
	}).Info("Session running")
	return nil
}

func (c *Client) resolveProfile() ([]byte, error) {
	name := c.profileArg
	if name == "" {
		name = c.cfg.LastUsedProfile
	}
	if name == "" {
		c.profile = UniqueProfileName(c.cfg.DataDir, DefaultProfileName)
		c.newProfile = true
		c.cfg.LastUsedProfile = c.profile

		logrus.WithFields(logrus.Fields{
			"function": "resolveProfile",
			"profile":  c.profile,
		}).Info("Creating new profile")
		return nil, nil
	}

	c.profile = name
	data, err := LoadProfile(c.cfg.DataDir, name)
	if err != nil {
		return nil, err
	}
	c.cfg.LastUsedProfile = name
	return data, nil
}

func (c *Client) loadFriends() {
	ids := c.eng.FriendList()
	list := make([]friend.Friend, 0, len(ids))
	for _, id := range ids {
		pk, err := c.eng.FriendPublicKey(id)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "loadFriends",
				"friend_id": id,
				"error":     err.Error(),
			}).Warn("Skipping friend without public key")
			continue
		}
		name, _ := c.eng.FriendName(id)
		statusMessage, _ := c.eng.FriendStatusMessage(id)
		list = append(list, friend.Friend{
			ID:            id,
			PublicKey:     pk,
			Name:          name,
			StatusMessage: statusMessage,
		})
	}
	c.friends.ApplyFullList(list)
}

func (c *Client) bootstrap() {
	node := c.cfg.Bootstrap
	c.bootstrapErr = c.eng.Bootstrap(node.Host, uint16(node.Port), node.PublicKey)

	fields := logrus.Fields{
		"function": "bootstrap",
		"host":     node.Host,
		"port":     node.Port,
	}
	if c.bootstrapErr != nil {
		fields["error"] = c.bootstrapErr.Error()
		logrus.WithFields(fields).Warn("Bootstrap failed, waiting for other peers")
		return
	}
	logrus.WithFields(fields).Info("Bootstrap node contacted")
}

// abortStart releases whatever start acquired before failing.
func (c *Client) abortStart() {
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "abortStart",
				"error":    err.Error(),
			}).Warn("Failed to close message store")
		}
		c.store = nil
	}
	if c.eng != nil {
		c.eng.Close()
		c.eng = nil
	}
}

func (c *Client) avatarDir() string {
	return AvatarDir(c.cfg.DataDir)
}

func (c *Client) saveProfile() error {
	data, err := c.eng.SaveData()
	if err != nil {
		return fmt.Errorf("serialize profile %s: %w", c.profile, err)
	}
	return SaveProfile(c.cfg.DataDir, c.profile, data)
}
