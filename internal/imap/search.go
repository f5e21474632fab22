package imap

import (
	"fmt"
	"sort"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// SearchUndeleted returns the UIDs of all messages in the selected folder
// that are not flagged \Deleted, in ascending order.
func SearchUndeleted(c *client.Client) ([]uint32, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.DeletedFlag}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search folder: %w", err)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// DiffUIDs compares the server's UID set against the cached one and
// returns the UIDs to fetch and the cached UIDs the server no longer has.
func DiffUIDs(serverUIDs []uint32, cachedUIDs map[int64]struct{}) (newUIDs []uint32, deletedUIDs []int64) {
	onServer := make(map[int64]struct{}, len(serverUIDs))
	for _, uid := range serverUIDs {
		onServer[int64(uid)] = struct{}{}
		if _, ok := cachedUIDs[int64(uid)]; !ok {
			newUIDs = append(newUIDs, uid)
		}
	}

	for uid := range cachedUIDs {
		if _, ok := onServer[uid]; !ok {
			deletedUIDs = append(deletedUIDs, uid)
		}
	}

	sort.Slice(newUIDs, func(i, j int) bool { return newUIDs[i] < newUIDs[j] })
	sort.Slice(deletedUIDs, func(i, j int) bool { return deletedUIDs[i] < deletedUIDs[j] })
	return newUIDs, deletedUIDs
}
