package bulwark

import (
	"github.com/goliatone/go-repository-bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() AccountRepository
	Tokens() TokenRepository
	MagicCodes() MagicCodeRepository
	SigningKeys() SigningKeyRepository
	Authorization() AuthorizationSource
}
