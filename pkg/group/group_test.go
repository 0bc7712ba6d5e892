package group_test

import (
	"testing"

	"github.com/cmwaters/ballot/pkg/group"
	"github.com/cmwaters/ballot/pkg/sign"
	"github.com/stretchr/testify/require"
)

func TestNewCommittee(t *testing.T) {
	a, b, c := sign.NewTestSigner(), sign.NewTestSigner(), sign.NewTestSigner()

	_, err := group.NewCommittee(nil, 1)
	require.Error(t, err)
	_, err = group.NewCommittee([]group.Member{a.ToMember(1)}, 2)
	require.Error(t, err)
	_, err = group.NewCommittee([]group.Member{a.ToMember(1), a.ToMember(1)}, 1)
	require.Error(t, err)
	_, err = group.NewCommittee([]group.Member{a.ToMember(0)}, 1)
	require.Error(t, err)

	committee, err := group.NewCommittee([]group.Member{a.ToMember(1), b.ToMember(2), c.ToMember(3)}, 4)
	require.NoError(t, err)
	require.Equal(t, 3, committee.Size())
	require.EqualValues(t, 6, committee.TotalWeight())
	member, index := committee.GetMemberByID(b.ID())
	require.NotNil(t, member)
	require.Equal(t, b.ID(), committee.Member(index).ID())
	require.Nil(t, committee.Member(3))

	members := committee.Members()
	first := members[0].ID()
	members[0], members[2] = members[2], members[0]
	members[1] = nil
	require.Equal(t, first, committee.Member(0).ID())
	require.NotNil(t, committee.Member(1))
	require.Equal(t, 3, committee.Size())
}

func TestQuorum(t *testing.T) {
	a, b, c := sign.NewTestSigner(), sign.NewTestSigner(), sign.NewTestSigner()
	committee, err := group.NewCommittee([]group.Member{a.ToMember(1), b.ToMember(1), c.ToMember(1)}, 2)
	require.NoError(t, err)

	q := group.NewQuorum(committee)
	added, err := q.Add(a.ID())
	require.NoError(t, err)
	require.True(t, added)
	require.False(t, q.Reached())

	// contributions are counted once per member
	added, err = q.Add(a.ID())
	require.NoError(t, err)
	require.False(t, added)
	require.False(t, q.Reached())

	_, err = q.Add([]byte("stranger"))
	require.ErrorIs(t, err, group.ErrUnknownMember)

	_, err = q.Add(c.ID())
	require.NoError(t, err)
	require.True(t, q.Reached())
	require.EqualValues(t, 2, q.Weight())
	require.Len(t, q.Signers(), 2)
}
