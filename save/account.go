package save

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "encore"
	keyringUser    = "accounts"
)

var ErrAccountNotFound = errors.New("account not found")

// Account is one stored platform login. Tokens live in the system
// keyring, or in a plain file when no keyring is available.
type Account struct {
	ID           string    `json:"id"`
	Platform     string    `json:"platform"`
	DisplayName  string    `json:"display_name"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IsMain       bool      `json:"is_main"`
	IsAnonymous  bool      `json:"is_anonymous"`
	CreatedAt    time.Time `json:"created_at"`
}

var anonymousAccount = Account{
	ID:          "anonymous",
	DisplayName: "Anonymous",
	IsAnonymous: true,
}

type accountFile struct {
	Accounts []Account `json:"accounts"`
}

// AccountProvider stores accounts as one JSON blob behind a keyring
// interface.
type AccountProvider struct {
	keyring keyring.Keyring
}

func NewAccountProvider(keyring keyring.Keyring) AccountProvider {
	return AccountProvider{keyring: keyring}
}

func (a AccountProvider) GetAccountBy(id string) (Account, error) {
	accounts, err := a.loadAccounts()
	if err != nil {
		return Account{}, err
	}

	if i := slices.IndexFunc(accounts, func(a Account) bool { return a.ID == id }); i != -1 {
		return accounts[i], nil
	}

	return Account{}, ErrAccountNotFound
}

func (a AccountProvider) GetMainAccount() (Account, error) {
	accounts, err := a.loadAccounts()
	if err != nil {
		return Account{}, err
	}

	if i := slices.IndexFunc(accounts, func(a Account) bool { return a.IsMain }); i != -1 {
		return accounts[i], nil
	}

	return Account{}, ErrAccountNotFound
}

func (a AccountProvider) GetAllAccounts() ([]Account, error) {
	return a.loadAccounts()
}

func (a AccountProvider) Remove(id string) error {
	accounts, err := a.loadAccounts()
	if err != nil {
		return err
	}

	i := slices.IndexFunc(accounts, func(a Account) bool { return a.ID == id })

	if i == -1 {
		return ErrAccountNotFound
	}

	// If account was main account, select a new main account if available
	if accounts[i].IsMain {
		indexNewMain := slices.IndexFunc(accounts, func(a Account) bool { return a.ID != id && !a.IsAnonymous })

		if indexNewMain != -1 {
			accounts[indexNewMain].IsMain = true
		}
	}

	accounts = slices.Delete(accounts, i, i+1)

	return a.saveAccounts(accounts)
}

func (a AccountProvider) Add(account Account) error {
	accounts, err := a.loadAccounts()
	if err != nil {
		return err
	}

	// If account already exists, throw error
	if i := slices.IndexFunc(accounts, func(a Account) bool { return a.ID == account.ID }); i != -1 {
		return fmt.Errorf("account with id %s already exists", account.ID)
	}

	// Don't allow anonymous account
	account.IsAnonymous = false

	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	// If account is main account, set all other accounts to not main
	if account.IsMain {
		for i := range accounts {
			accounts[i].IsMain = false
		}
	}

	accounts = append(accounts, account)

	return a.saveAccounts(accounts)
}

func (a AccountProvider) UpdateTokensFor(id, accessToken, refreshToken string) error {
	accounts, err := a.loadAccounts()
	if err != nil {
		return err
	}

	i := slices.IndexFunc(accounts, func(a Account) bool { return a.ID == id })

	if i == -1 {
		return ErrAccountNotFound
	}

	accounts[i].AccessToken = accessToken
	accounts[i].RefreshToken = refreshToken

	return a.saveAccounts(accounts)
}

func (a AccountProvider) MarkAccountAsMain(id string) error {
	accounts, err := a.loadAccounts()
	if err != nil {
		return err
	}

	accountIndex := slices.IndexFunc(accounts, func(a Account) bool { return a.ID == id })

	if accountIndex == -1 {
		return ErrAccountNotFound
	}

	for i := range accounts {
		accounts[i].IsMain = false
	}

	accounts[accountIndex].IsMain = true

	return a.saveAccounts(accounts)
}

func (a AccountProvider) loadAccounts() ([]Account, error) {
	data, err := a.keyring.Get(keyringService, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return []Account{anonymousAccount}, nil
		}

		return nil, err
	}

	var fileData accountFile
	if err := json.Unmarshal([]byte(data), &fileData); err != nil {
		syntaxErr := &json.SyntaxError{}
		if errors.As(err, &syntaxErr) {
			return []Account{anonymousAccount}, nil
		}

		return nil, err
	}

	fileData.Accounts = append(fileData.Accounts, anonymousAccount)

	return fileData.Accounts, nil
}

func (a AccountProvider) saveAccounts(accounts []Account) error {
	accountsCopy := make([]Account, len(accounts))
	copy(accountsCopy, accounts)

	accountsCopy = slices.DeleteFunc(accountsCopy, func(a Account) bool {
		return a.IsAnonymous
	})

	data, err := json.Marshal(accountFile{Accounts: accountsCopy})
	if err != nil {
		return err
	}

	return a.keyring.Set(keyringService, keyringUser, string(data))
}
