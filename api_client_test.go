package presencecount

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"slices"
	"time"

	"github.com/Arceliar/phony"
	"github.com/go-resty/resty/v2"
)

// ApiClient talks to a running dashboard server and collects its event stream.
type ApiClient struct {
	phony.Inbox
	baseUrl        string
	c              *resty.Client
	currentReader  io.ReadCloser
	cancel         context.CancelFunc
	receivedEvents []ReceivedEvent
}

func NewApiClient(baseUrl string) *ApiClient {
	client := &ApiClient{
		baseUrl: baseUrl,
		c:       resty.New().SetBaseURL(baseUrl).SetTimeout(2 * time.Second),
		cancel:  func() {},
	}
	return client
}

func (a *ApiClient) GetOnline() (CountSnapshot, error) {
	var snapshot CountSnapshot
	res, err := a.c.R().SetResult(&snapshot).Get("/online")
	if err != nil {
		return snapshot, err
	}
	if res.IsError() {
		return snapshot, fmt.Errorf("GET /online returned [%d]: %s", res.StatusCode(), res.String())
	}
	return snapshot, nil
}

func (a *ApiClient) WaitForCount(expected int) error {
	var last CountSnapshot
	for i := 0; i < 50; i++ {
		snapshot, err := a.GetOnline()
		if err != nil {
			return err
		}
		if snapshot.Count == expected {
			return nil
		}
		last = snapshot
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("expected %d users online, last seen %d", expected, last.Count)
}

func (a *ApiClient) Login(user string) error {
	return a.post("/auth/login/" + user)
}

func (a *ApiClient) Logout() error {
	return a.post("/auth/logout")
}

func (a *ApiClient) post(path string) error {
	res, err := a.c.R().Post(path)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("POST %s returned [%d]", path, res.StatusCode())
	}
	return nil
}

func (a *ApiClient) WaitForEventSeen(eventName string) error {
	var found bool
	log.Printf("Waiting for event '%s' ...", eventName)
	for i := 0; i < 20; i++ {
		phony.Block(a, func() {
			found = slices.IndexFunc(a.receivedEvents, func(e ReceivedEvent) bool {
				return e.Name == eventName
			}) != -1
		})
		if found {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("gave up waiting for event: %v", eventName)
}

func (a *ApiClient) ReceivedEvents() []ReceivedEvent {
	var res []ReceivedEvent
	phony.Block(a, func() {
		res = append(res, a.receivedEvents...)
	})
	return res
}

// SubscribeToEvents starts reading the /events stream in the background.
func (a *ApiClient) SubscribeToEvents() error {
	ctx, cancel := context.WithCancel(context.Background())
	res, err := resty.New().SetBaseURL(a.baseUrl).R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get("/events")
	if err != nil {
		cancel()
		return err
	}
	phony.Block(a, func() {
		a.cancel = cancel
		a.currentReader = res.RawBody()
	})
	go a.readForever(res.RawBody())
	return nil
}

func (a *ApiClient) readForever(body io.Reader) {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := append([]byte{}, scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		a.Act(nil, func() {
			var event ReceivedEvent
			if err := json.Unmarshal(line, &event); err != nil {
				log.Println("error unmarshalling event:", err)
				return
			}
			a.receivedEvents = append(a.receivedEvents, event)
		})
	}
}

func (a *ApiClient) Close() {
	a.cancel()
	phony.Block(a, func() {
		if a.currentReader != nil {
			a.currentReader.Close()
			a.currentReader = nil
		}
	})
}

type ReceivedEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties"`
}
