package mempool

import "sort"

// byTimestamp orders entries by transaction timestamp. Transactions with the
// same timestamp keep the order they arrived in.
type byTimestamp []entry

func (bt byTimestamp) Len() int {
	return len(bt)
}

func (bt byTimestamp) Less(i, j int) bool {
	if bt[i].tx.Timestamp == bt[j].tx.Timestamp {
		return bt[i].seq < bt[j].seq
	}
	return bt[i].tx.Timestamp < bt[j].tx.Timestamp
}

func (bt byTimestamp) Swap(i, j int) {
	bt[i], bt[j] = bt[j], bt[i]
}

// bySeq orders entries by the order they arrived in.
type bySeq []entry

func (bs bySeq) Len() int {
	return len(bs)
}

func (bs bySeq) Less(i, j int) bool {
	return bs[i].seq < bs[j].seq
}

func (bs bySeq) Swap(i, j int) {
	bs[i], bs[j] = bs[j], bs[i]
}

func sortByTimestamp(entries []entry) {
	sort.Sort(byTimestamp(entries))
}

func sortBySeq(entries []entry) {
	sort.Sort(bySeq(entries))
}
