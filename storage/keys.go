package storage

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Key layout:
//   s:<account>                  bundle settings of a delegated account
//   sub:<account>:<ulid>         submission record
//   ct:sub:<account>             number of submissions ever made

func SettingsKey(account common.Address) []byte {
	return []byte(fmt.Sprintf("s:%s", strings.ToLower(account.Hex())))
}

func SubmissionPrefix(account common.Address) string {
	return fmt.Sprintf("sub:%s:", strings.ToLower(account.Hex()))
}

func SubmissionKey(account common.Address, id string) []byte {
	return []byte(SubmissionPrefix(account) + id)
}

func SubmissionCounterKey(account common.Address) []byte {
	return []byte(fmt.Sprintf("ct:sub:%s", strings.ToLower(account.Hex())))
}
