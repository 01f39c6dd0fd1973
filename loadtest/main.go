// Command loadtest drives the chat layer with pairs of users trading
// direct messages over websocket connections.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 250 // each pair is two users
	MsgCount  = 20  // messages per user
)

type authResponse struct {
	AccessToken string `json:"access_token"`
	ID          string `json:"id"`
	Username    string `json:"username"`
}

func main() {
	log.Printf("starting load test: %d users, %d messages each", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("load test complete")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("load_%d_a", pairID)
	userB := fmt.Sprintf("load_%d_b", pairID)
	pass := "loadtest-password"

	authA := authenticate(userA, pass)
	authB := authenticate(userB, pass)
	if authA == nil || authB == nil {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, authA.AccessToken, authB.ID, userA)
	go spamChat(&wsWg, authB.AccessToken, authA.ID, userB)
	wsWg.Wait()
}

// authenticate registers the user (ignoring conflicts on reruns) and logs in.
func authenticate(username, password string) *authResponse {
	postJSON("/register", map[string]string{
		"username": username,
		"email":    username + "@loadtest.local",
		"password": password,
	})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("login failed [%s]: %v", username, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("login failed [%s]: status %d", username, resp.StatusCode)
		return nil
	}

	var data authResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Printf("login decode failed [%s]: %v", username, err)
		return nil
	}
	return &data
}

func spamChat(wg *sync.WaitGroup, token, recipientID, user string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, token), nil)
	if err != nil {
		log.Printf("ws connect failed [%s]: %v", user, err)
		return
	}
	defer conn.Close()

	// Drain server frames so the write side never stalls on a full socket.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < MsgCount; i++ {
		frame := map[string]interface{}{
			"type":        "chat:message",
			"recipientId": recipientID,
			"content":     fmt.Sprintf("load message %d from %s", i, user),
		}
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("send failed [%s]: %v", user, err)
			break
		}
		// Keep localhost from collapsing every send into one burst.
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("%s finished sending %d messages", user, MsgCount)
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
