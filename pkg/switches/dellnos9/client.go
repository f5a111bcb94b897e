package dellnos9

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	cliPath       = "/api/running/dell/_operations/cli"
	interfacePath = "/api/running/dell/interfaces/interface/"

	maxResponse = 4 << 20
)

// client speaks the switch's RESTCONF style XML API.
type client struct {
	http     *http.Client
	base     string
	username string
	password string
}

// Command kinds accepted by the CLI operation.
type cliKind int

const (
	kindConfig cliKind = iota
	kindShow
	kindExec
)

type cliInput struct {
	XMLName xml.Name `xml:"input"`
	Config  string   `xml:"config-commands,omitempty"`
	Show    string   `xml:"show-command,omitempty"`
	Exec    string   `xml:"exec-command,omitempty"`
}

type cliOutput struct {
	Command string `xml:"command"`
}

// cli runs command through the CLI operation and returns its text output.
func (c *client) cli(ctx context.Context, kind cliKind, command string) (string, error) {
	var in cliInput
	switch kind {
	case kindConfig:
		in.Config = command
	case kindShow:
		in.Show = command
	case kindExec:
		in.Exec = command
	}
	body, err := xml.Marshal(in)
	if err != nil {
		return "", err
	}
	data, err := c.do(ctx, http.MethodPost, cliPath, body)
	if err != nil {
		return "", err
	}
	var out cliOutput
	if err := xml.Unmarshal(data, &out); err != nil {
		return string(data), nil
	}
	return out.Command, nil
}

type portMode struct {
	Hybrid bool `xml:"hybrid"`
}

type interfaceDoc struct {
	XMLName    xml.Name  `xml:"interface"`
	Name       string    `xml:"name"`
	PortMode   *portMode `xml:"portmode,omitempty"`
	Switchport *struct{} `xml:"switchport,omitempty"`
	Shutdown   string    `xml:"shutdown"`
}

// interfaceEnabled reports whether the interface named name is not shut down.
func (c *client) interfaceEnabled(ctx context.Context, name string) (bool, error) {
	data, err := c.do(ctx, http.MethodGet, interfacePath+name+"?with-defaults", nil)
	if err != nil {
		return false, err
	}
	var doc interfaceDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("decoding interface %s: %w", name, err)
	}
	return strings.TrimSpace(doc.Shutdown) == "false", nil
}

// setInterface brings the interface up as a hybrid switchport, or shuts it down.
func (c *client) setInterface(ctx context.Context, name string, up bool) error {
	doc := interfaceDoc{Name: name, Shutdown: "true"}
	if up {
		doc.PortMode = &portMode{Hybrid: true}
		doc.Switchport = &struct{}{}
		doc.Shutdown = "false"
	}
	body, err := xml.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPut, interfacePath+name, body)
	return err
}

func (c *client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/xml")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}
