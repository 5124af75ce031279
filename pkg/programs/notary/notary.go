// Package notary implements a document notarization program.
//
// A document is notarized by submitting it with an Ed25519 signature over
// its contents. The program records the signer's public key and the block
// time under the document digest; a digest can be notarized only once.
package notary

import (
	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/runtime"
	"github.com/fortiblox/X1-Nimbus/pkg/storage"
)

// Kind is the registry name of the notary program.
const Kind = "notary"

// Program returns the notary program.
func Program() runtime.Program {
	return runtime.Methods{
		"Notarize":    notarize,
		"Signer":      signer,
		"NotarizedAt": notarizedAt,
		"IsNotarized": isNotarized,
	}
}

type registry struct {
	signers *storage.Mapping[types.Bytes, types.Bytes]
	times   *storage.Mapping[types.Bytes, int64]
}

func open(h runtime.Host) *registry {
	s := h.Storage()
	return &registry{
		signers: storage.NewMapping(s, "signers", abi.BytesCodec, abi.BytesCodec),
		times:   storage.NewMapping(s, "times", abi.BytesCodec, abi.Int64Codec),
	}
}

// notarize(pub, doc, sig bytes) returns the document digest.
func notarize(h runtime.Host, args abi.Args) (abi.Value, error) {
	if err := args.Expect(3); err != nil {
		return abi.Value{}, err
	}
	pub, err := args.Bytes(0)
	if err != nil {
		return abi.Value{}, err
	}
	doc, err := args.Bytes(1)
	if err != nil {
		return abi.Value{}, err
	}
	sig, err := args.Bytes(2)
	if err != nil {
		return abi.Value{}, err
	}

	ok, err := h.VerifySignature(pub, doc, sig)
	if err != nil {
		return abi.Value{}, err
	}
	if !ok {
		return abi.Value{}, h.Raise("invalid signature")
	}

	digest, err := h.Hash(doc)
	if err != nil {
		return abi.Value{}, err
	}
	r := open(h)
	exists, err := r.signers.ContainsKey(digest)
	if err != nil {
		return abi.Value{}, err
	}
	if exists {
		return abi.Value{}, h.Raise("document already notarized")
	}
	if err := r.signers.Put(digest, pub); err != nil {
		return abi.Value{}, err
	}
	if err := r.times.Put(digest, h.Context().LastBlockTime()); err != nil {
		return abi.Value{}, err
	}
	if err := h.Emit("Notarized", abi.BytesOf(digest)); err != nil {
		return abi.Value{}, err
	}
	return abi.BytesOf(digest), nil
}

// signer(digest) returns the signer's key; an unknown digest fails.
func signer(h runtime.Host, args abi.Args) (abi.Value, error) {
	digest, err := digestArg(args)
	if err != nil {
		return abi.Value{}, err
	}
	pub, err := open(h).signers.Get(digest)
	if err != nil {
		return abi.Value{}, err
	}
	return abi.BytesOf(pub), nil
}

func notarizedAt(h runtime.Host, args abi.Args) (abi.Value, error) {
	digest, err := digestArg(args)
	if err != nil {
		return abi.Value{}, err
	}
	t, err := open(h).times.Get(digest)
	if err != nil {
		return abi.Value{}, err
	}
	return abi.Int64(t), nil
}

func isNotarized(h runtime.Host, args abi.Args) (abi.Value, error) {
	digest, err := digestArg(args)
	if err != nil {
		return abi.Value{}, err
	}
	ok, err := open(h).signers.ContainsKey(digest)
	if err != nil {
		return abi.Value{}, err
	}
	return abi.Bool(ok), nil
}

func digestArg(args abi.Args) (types.Bytes, error) {
	if err := args.Expect(1); err != nil {
		return types.Empty, err
	}
	return args.Bytes(0)
}
