// Copyright 2014 The go-ethereum Authors
// Copyright 2025 The Basalt Network Authors
// This file is part of the gbasalt library.
//
// The gbasalt library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The gbasalt library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the gbasalt library. If not, see <http://www.gnu.org/licenses/>.

// Package p2p carries the wire protocol: tagged, canonically encoded
// messages exchanged between nodes.
package p2p

import (
	"errors"
	"fmt"

	"github.com/basalt-network/gbasalt/codec"
	"github.com/basalt-network/gbasalt/common"
)

// Message tags. Consensus is the 0x10 family, transaction exchange 0x20,
// block exchange 0x30, gossip control 0x40.
const (
	TagConsensusProposal = 0x10
	TagConsensusVote     = 0x11
	TagViewChange        = 0x12

	TagTxAnnounce = 0x20
	TagTxRequest  = 0x21
	TagTxPayload  = 0x22

	TagBlockAnnounce = 0x30
	TagBlockRequest  = 0x31
	TagBlockPayload  = 0x32
	TagSyncRequest   = 0x33

	TagPing  = 0x40
	TagPong  = 0x41
	TagIHave = 0x42
	TagIWant = 0x43
	TagGraft = 0x44
	TagPrune = 0x45
)

var ErrUnknownMessage = errors.New("p2p: unknown message tag")

// Prefix is the sender identity and send time carried by every message.
type Prefix struct {
	SenderID    common.Hash
	TimestampMs uint64
}

// Message is any decodable wire message.
type Message interface {
	Tag() byte
	encodeBody(w *codec.Writer)
	decodeBody(r *codec.Reader)
}

type ConsensusProposal struct {
	Prefix
	View        uint64
	BlockNumber uint64
	BlockHash   common.Hash
	Proposer    common.Address
	Block       []byte
	ProposerSig []byte
}

type ConsensusVote struct {
	Prefix
	BlockNumber uint64
	View        uint64
	BlockHash   common.Hash
	Phase       uint8
	VoterAddr   common.Address
	VoterSig    []byte
	VoterPubkey []byte
}

type ViewChange struct {
	Prefix
	CurrentView  uint64
	ProposedView uint64
	VoterAddr    common.Address
	VoterSig     []byte
	VoterPubkey  []byte
}

type TxAnnounce struct {
	Prefix
	Hashes []common.Hash
}

type TxRequest struct {
	Prefix
	Hashes []common.Hash
}

type TxPayload struct {
	Prefix
	Txs [][]byte
}

type BlockAnnounce struct {
	Prefix
	Number uint64
	Hash   common.Hash
}

type BlockRequest struct {
	Prefix
	Hash common.Hash
}

type BlockPayload struct {
	Prefix
	Block []byte
}

type SyncRequest struct {
	Prefix
	FromNumber uint64
	ToNumber   uint64
}

type Ping struct {
	Prefix
	Nonce uint64
}

type Pong struct {
	Prefix
	Nonce uint64
}

type IHave struct {
	Prefix
	Hashes []common.Hash
}

type IWant struct {
	Prefix
	Hashes []common.Hash
}

type Graft struct {
	Prefix
}

type Prune struct {
	Prefix
}

func (m *ConsensusProposal) Tag() byte { return TagConsensusProposal }
func (m *ConsensusVote) Tag() byte     { return TagConsensusVote }
func (m *ViewChange) Tag() byte        { return TagViewChange }
func (m *TxAnnounce) Tag() byte        { return TagTxAnnounce }
func (m *TxRequest) Tag() byte         { return TagTxRequest }
func (m *TxPayload) Tag() byte         { return TagTxPayload }
func (m *BlockAnnounce) Tag() byte     { return TagBlockAnnounce }
func (m *BlockRequest) Tag() byte      { return TagBlockRequest }
func (m *BlockPayload) Tag() byte      { return TagBlockPayload }
func (m *SyncRequest) Tag() byte       { return TagSyncRequest }
func (m *Ping) Tag() byte              { return TagPing }
func (m *Pong) Tag() byte              { return TagPong }
func (m *IHave) Tag() byte             { return TagIHave }
func (m *IWant) Tag() byte             { return TagIWant }
func (m *Graft) Tag() byte             { return TagGraft }
func (m *Prune) Tag() byte             { return TagPrune }

func (p *Prefix) encodePrefix(w *codec.Writer) {
	w.WriteHash(p.SenderID)
	w.WriteUint64(p.TimestampMs)
}

func (p *Prefix) decodePrefix(r *codec.Reader) {
	p.SenderID = r.ReadHash()
	p.TimestampMs = r.ReadUint64()
}

func writeHashes(w *codec.Writer, hashes []common.Hash) {
	w.WriteUint32(uint32(len(hashes)))
	for _, h := range hashes {
		w.WriteHash(h)
	}
}

func readHashes(r *codec.Reader) []common.Hash {
	n := r.ReadUint32()
	var out []common.Hash
	for i := uint32(0); i < n && r.Err() == nil; i++ {
		out = append(out, r.ReadHash())
	}
	return out
}

func (m *ConsensusProposal) encodeBody(w *codec.Writer) {
	w.WriteUint64(m.View)
	w.WriteUint64(m.BlockNumber)
	w.WriteHash(m.BlockHash)
	w.WriteAddress(m.Proposer)
	w.WriteBytes(m.Block)
	w.WriteBytes(m.ProposerSig)
}

func (m *ConsensusProposal) decodeBody(r *codec.Reader) {
	m.View = r.ReadUint64()
	m.BlockNumber = r.ReadUint64()
	m.BlockHash = r.ReadHash()
	m.Proposer = r.ReadAddress()
	m.Block = r.ReadBytes()
	m.ProposerSig = r.ReadBytes()
}

func (m *ConsensusVote) encodeBody(w *codec.Writer) {
	w.WriteUint64(m.BlockNumber)
	w.WriteUint64(m.View)
	w.WriteHash(m.BlockHash)
	w.WriteUint8(m.Phase)
	w.WriteAddress(m.VoterAddr)
	w.WriteBytes(m.VoterSig)
	w.WriteBytes(m.VoterPubkey)
}

func (m *ConsensusVote) decodeBody(r *codec.Reader) {
	m.BlockNumber = r.ReadUint64()
	m.View = r.ReadUint64()
	m.BlockHash = r.ReadHash()
	m.Phase = r.ReadUint8()
	m.VoterAddr = r.ReadAddress()
	m.VoterSig = r.ReadBytes()
	m.VoterPubkey = r.ReadBytes()
}

func (m *ViewChange) encodeBody(w *codec.Writer) {
	w.WriteUint64(m.CurrentView)
	w.WriteUint64(m.ProposedView)
	w.WriteAddress(m.VoterAddr)
	w.WriteBytes(m.VoterSig)
	w.WriteBytes(m.VoterPubkey)
}

func (m *ViewChange) decodeBody(r *codec.Reader) {
	m.CurrentView = r.ReadUint64()
	m.ProposedView = r.ReadUint64()
	m.VoterAddr = r.ReadAddress()
	m.VoterSig = r.ReadBytes()
	m.VoterPubkey = r.ReadBytes()
}

func (m *TxAnnounce) encodeBody(w *codec.Writer) { writeHashes(w, m.Hashes) }
func (m *TxAnnounce) decodeBody(r *codec.Reader) { m.Hashes = readHashes(r) }
func (m *TxRequest) encodeBody(w *codec.Writer)  { writeHashes(w, m.Hashes) }
func (m *TxRequest) decodeBody(r *codec.Reader)  { m.Hashes = readHashes(r) }

func (m *TxPayload) encodeBody(w *codec.Writer) {
	w.WriteUint32(uint32(len(m.Txs)))
	for _, tx := range m.Txs {
		w.WriteBytes(tx)
	}
}

func (m *TxPayload) decodeBody(r *codec.Reader) {
	n := r.ReadUint32()
	for i := uint32(0); i < n && r.Err() == nil; i++ {
		m.Txs = append(m.Txs, r.ReadBytes())
	}
}

func (m *BlockAnnounce) encodeBody(w *codec.Writer) {
	w.WriteUint64(m.Number)
	w.WriteHash(m.Hash)
}

func (m *BlockAnnounce) decodeBody(r *codec.Reader) {
	m.Number = r.ReadUint64()
	m.Hash = r.ReadHash()
}

func (m *BlockRequest) encodeBody(w *codec.Writer) { w.WriteHash(m.Hash) }
func (m *BlockRequest) decodeBody(r *codec.Reader) { m.Hash = r.ReadHash() }

func (m *BlockPayload) encodeBody(w *codec.Writer) { w.WriteBytes(m.Block) }
func (m *BlockPayload) decodeBody(r *codec.Reader) { m.Block = r.ReadBytes() }

func (m *SyncRequest) encodeBody(w *codec.Writer) {
	w.WriteUint64(m.FromNumber)
	w.WriteUint64(m.ToNumber)
}

func (m *SyncRequest) decodeBody(r *codec.Reader) {
	m.FromNumber = r.ReadUint64()
	m.ToNumber = r.ReadUint64()
}

func (m *Ping) encodeBody(w *codec.Writer) { w.WriteUint64(m.Nonce) }
func (m *Ping) decodeBody(r *codec.Reader) { m.Nonce = r.ReadUint64() }
func (m *Pong) encodeBody(w *codec.Writer) { w.WriteUint64(m.Nonce) }
func (m *Pong) decodeBody(r *codec.Reader) { m.Nonce = r.ReadUint64() }

func (m *IHave) encodeBody(w *codec.Writer) { writeHashes(w, m.Hashes) }
func (m *IHave) decodeBody(r *codec.Reader) { m.Hashes = readHashes(r) }
func (m *IWant) encodeBody(w *codec.Writer) { writeHashes(w, m.Hashes) }
func (m *IWant) decodeBody(r *codec.Reader) { m.Hashes = readHashes(r) }

func (m *Graft) encodeBody(*codec.Writer) {}
func (m *Graft) decodeBody(*codec.Reader) {}
func (m *Prune) encodeBody(*codec.Writer) {}
func (m *Prune) decodeBody(*codec.Reader) {}

// Encode serializes a message: tag, common prefix, body.
func Encode(m Message) []byte {
	w := codec.NewWriter(64)
	w.WriteUint8(m.Tag())
	m.(interface{ encodePrefix(*codec.Writer) }).encodePrefix(w)
	m.encodeBody(w)
	return w.Bytes()
}

// Decode parses a tagged message. The input must be consumed exactly.
func Decode(data []byte) (Message, error) {
	r := codec.NewReader(data)
	tag := r.ReadUint8()
	var m Message
	switch tag {
	case TagConsensusProposal:
		m = new(ConsensusProposal)
	case TagConsensusVote:
		m = new(ConsensusVote)
	case TagViewChange:
		m = new(ViewChange)
	case TagTxAnnounce:
		m = new(TxAnnounce)
	case TagTxRequest:
		m = new(TxRequest)
	case TagTxPayload:
		m = new(TxPayload)
	case TagBlockAnnounce:
		m = new(BlockAnnounce)
	case TagBlockRequest:
		m = new(BlockRequest)
	case TagBlockPayload:
		m = new(BlockPayload)
	case TagSyncRequest:
		m = new(SyncRequest)
	case TagPing:
		m = new(Ping)
	case TagPong:
		m = new(Pong)
	case TagIHave:
		m = new(IHave)
	case TagIWant:
		m = new(IWant)
	case TagGraft:
		m = new(Graft)
	case TagPrune:
		m = new(Prune)
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnknownMessage, tag)
	}
	prefixed := m.(interface{ decodePrefix(*codec.Reader) })
	prefixed.decodePrefix(r)
	m.decodeBody(r)
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return m, nil
}
