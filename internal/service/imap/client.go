// Package imap ingests mail from a single mailbox into the email store.
package imap

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
)

// Message is one fetched, unprocessed message.
type Message struct {
	UID     imap.UID
	RawBody []byte
}

// AuthConfig holds the connection and login parameters for one mailbox.
type AuthConfig struct {
	Host     string
	Port     int
	UseTLS   bool
	Username string
	Password string
}

// Client abstracts the IMAP operations the ingester needs, so tests can
// substitute a fake without a real mailbox.
type Client interface {
	Connect(config AuthConfig) error
	FetchAllMessages(mailbox string) ([]Message, error)
	Move(uids []imap.UID, targetMailbox string) error
	Close() error
}

// NewClient creates a real, network-backed Client.
func NewClient() Client {
	return &realClient{}
}

type realClient struct {
	client *imapclient.Client
}

func (c *realClient) Connect(config AuthConfig) error {
	addr := net.JoinHostPort(config.Host, fmt.Sprintf("%d", config.Port))

	var client *imapclient.Client
	var err error
	if config.UseTLS {
		client, err = imapclient.DialTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: config.Host},
		})
	} else {
		client, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("connect to IMAP server %s: %w", addr, err)
	}

	saslClient := sasl.NewPlainClient("", config.Username, config.Password)
	if err := client.Authenticate(saslClient); err != nil {
		client.Close()
		return fmt.Errorf("IMAP authentication failed: %w", err)
	}

	c.client = client
	return nil
}

func (c *realClient) FetchAllMessages(mailbox string) ([]Message, error) {
	if c.client == nil {
		return nil, fmt.Errorf("IMAP client not connected")
	}

	if _, err := c.client.Select(mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("select mailbox %q: %w", mailbox, err)
	}

	searchData, err := c.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("IMAP search failed: %w", err)
	}

	uidSet, ok := searchData.All.(imap.UIDSet)
	if !ok || len(uidSet) == 0 {
		return nil, nil
	}

	fetchOptions := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}

	fetchCmd := c.client.Fetch(uidSet, fetchOptions)
	defer fetchCmd.Close()

	var messages []Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		var uid imap.UID
		var body []byte
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			switch data := item.(type) {
			case imapclient.FetchItemDataUID:
				uid = data.UID
			case imapclient.FetchItemDataBodySection:
				if data.Literal != nil {
					body, _ = io.ReadAll(data.Literal)
				}
			}
		}

		if uid > 0 && len(body) > 0 {
			messages = append(messages, Message{UID: uid, RawBody: body})
		}
	}

	return messages, nil
}

func (c *realClient) Move(uids []imap.UID, targetMailbox string) error {
	if c.client == nil {
		return fmt.Errorf("IMAP client not connected")
	}
	if len(uids) == 0 {
		return nil
	}

	var uidSet imap.UIDSet
	for _, uid := range uids {
		uidSet.AddNum(uid)
	}

	if _, err := c.client.Move(uidSet, targetMailbox).Wait(); err != nil {
		return fmt.Errorf("move messages to %q: %w", targetMailbox, err)
	}
	return nil
}

func (c *realClient) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Logout().Wait(); err != nil {
		c.client.Close()
		return err
	}
	return c.client.Close()
}
