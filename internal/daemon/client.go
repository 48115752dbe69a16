package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// Client talks to the daemon over its unix socket, one request per
// connection.
type Client struct {
	socketPath string
}

// NewClient creates a client for the daemon socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Ping reports whether a daemon is answering on the socket.
func (c *Client) Ping() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Submit queues a task on the daemon.
func (c *Client) Submit(command []string, workingDir string, env, metadata map[string]string) (*SubmitReply, error) {
	var reply SubmitReply
	err := c.call(Request{
		Action:     ActionSubmit,
		Command:    command,
		WorkingDir: workingDir,
		Env:        env,
		Metadata:   metadata,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// Status fetches a task's lifecycle state.
func (c *Client) Status(taskID string) (*StatusReply, error) {
	var reply StatusReply
	if err := c.call(Request{Action: ActionStatus, TaskID: taskID}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Output fetches a task's accumulated stdout and stderr.
func (c *Client) Output(taskID string) (*OutputReply, error) {
	var reply OutputReply
	if err := c.call(Request{Action: ActionOutput, TaskID: taskID}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// List fetches all tasks the daemon knows about.
func (c *Client) List() (*ListReply, error) {
	var reply ListReply
	if err := c.call(Request{Action: ActionList}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Kill requests termination of a running task.
func (c *Client) Kill(taskID string) error {
	var reply KillReply
	return c.call(Request{Action: ActionKill, TaskID: taskID}, &reply)
}

// call performs one request/reply exchange. Error payloads from the
// daemon come back as plain errors.
func (c *Client) call(req Request, out any) error {
	if _, err := os.Stat(c.socketPath); err != nil {
		return errors.New("daemon not running (socket not found)")
	}

	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return errors.New("daemon not accepting connections")
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connTimeout))

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("communication error: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("communication error: %w", err)
	}

	buf := make([]byte, maxReplyBytes)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("communication error: %w", err)
	}

	var e errorReply
	if err := json.Unmarshal(buf[:n], &e); err != nil {
		return fmt.Errorf("communication error: %w", err)
	}
	if e.Error != "" {
		return errors.New(e.Error)
	}

	if out != nil {
		if err := json.Unmarshal(buf[:n], out); err != nil {
			return fmt.Errorf("communication error: %w", err)
		}
	}
	return nil
}
