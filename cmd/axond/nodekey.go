package main

import (
	"crypto/ecdsa"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
)

// loadOrCreateNodeKey reads the node's validator signing key from path,
// generating and persisting a fresh one on first run. Key management
// beyond this (HSM, remote signer, encrypted keystore) is out of core
// scope per spec §1.
func loadOrCreateNodeKey(path string) (*ecdsa.PrivateKey, error) {
	if key, err := crypto.LoadECDSA(path); err == nil {
		return key, nil
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveECDSA(path, key); err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}
