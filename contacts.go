package main

import (
	"strconv"
	"sync"

	client "github.com/zelenin/go-tdlib/client"
)

// ContactCache maps Telegram user IDs to the phone numbers calls are
// tracked by.
type ContactCache struct {
	mu        sync.RWMutex
	idToPhone map[int64]string
	idToName  map[int64]string
}

// NewContactCache creates an empty ContactCache.
func NewContactCache() *ContactCache {
	return &ContactCache{
		idToPhone: make(map[int64]string),
		idToName:  make(map[int64]string),
	}
}

// Refresh reloads contacts using GetContacts.
func (c *ContactCache) Refresh(cl *client.Client) error {
	contacts, err := cl.GetContacts()
	if err != nil {
		return err
	}
	users := make([]*client.User, 0, len(contacts.UserIds))
	for _, id := range contacts.UserIds {
		u, err := cl.GetUser(&client.GetUserRequest{UserId: id})
		if err != nil {
			continue
		}
		users = append(users, u)
	}
	c.Set(users)
	return nil
}

// Set replaces cache content with provided users.
func (c *ContactCache) Set(users []*client.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idToPhone = make(map[int64]string)
	c.idToName = make(map[int64]string)
	for _, u := range users {
		c.addLocked(u)
	}
}

// Update adds or updates a single user in the cache.
func (c *ContactCache) Update(u *client.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(u)
}

// addLocked stores user info; caller must hold write lock.
func (c *ContactCache) addLocked(u *client.User) {
	if u == nil {
		return
	}
	if u.PhoneNumber != "" {
		c.idToPhone[u.Id] = "+" + u.PhoneNumber
	}
	if name := username(u); name != "" {
		c.idToName[u.Id] = name
	}
}

// username returns the primary username for a user if available.
func username(u *client.User) string {
	if u == nil || u.Usernames == nil {
		return ""
	}
	if u.Usernames.EditableUsername != "" {
		return u.Usernames.EditableUsername
	}
	if len(u.Usernames.ActiveUsernames) > 0 {
		return u.Usernames.ActiveUsernames[0]
	}
	return ""
}

// Number returns the number a call with userID is tracked under: the
// phone number when known, then the username, then the raw ID.
func (c *ContactCache) Number(userID int64) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.idToPhone[userID]; ok {
		return p
	}
	if n, ok := c.idToName[userID]; ok {
		return "@" + n
	}
	return "tg" + strconv.FormatInt(userID, 10)
}
