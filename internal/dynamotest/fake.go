// Package dynamotest provides an in-memory DynamoDB stand-in for unit tests.
//
// It understands the small expression dialect the stores use:
//   - conditions: attribute_exists(p), attribute_not_exists(p), p = :v, p <> :v,
//     p >= :v, p > :v, p <= :v, p < :v, joined with AND / OR (AND binds tighter,
//     no parentheses)
//   - updates: SET p = :v[, ...], ADD p :v[, ...], REMOVE p[, ...]
//
// Query evaluates the key condition against every item of the table; index names
// are accepted and ignored. Results are ordered by primary key.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

type item = map[string]types.AttributeValue

// Fake is a concurrency-safe in-memory DynamoDB.
type Fake struct {
	mu     sync.Mutex
	keys   map[string]string          // table -> partition key attribute
	tables map[string]map[string]item // table -> key -> item
	calls  map[string]int
	fail   map[string]error
}

// New returns an empty Fake. Tables must be registered with CreateTable.
func New() *Fake {
	return &Fake{
		keys:   map[string]string{},
		tables: map[string]map[string]item{},
		calls:  map[string]int{},
		fail:   map[string]error{},
	}
}

// CreateTable registers a table with a string partition key.
func (f *Fake) CreateTable(name, partitionKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[name] = partitionKey
	f.tables[name] = map[string]item{}
}

// Item returns a copy of the stored item, or nil.
func (f *Fake) Item(table, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.tables[table][key]
	if !ok {
		return nil
	}
	return clone(it)
}

// Seed stores it directly, bypassing conditions.
func (f *Fake) Seed(table string, it map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, err := f.keyOf(table, it)
	if err != nil {
		panic(err)
	}
	f.tables[table][k] = clone(it)
}

// Len reports how many items a table holds.
func (f *Fake) Len(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

// Calls reports how many times op (e.g. "TransactWriteItems") was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// FailNext makes the next call to op return err.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *Fake) enter(op string) error {
	f.calls[op]++
	if err, ok := f.fail[op]; ok {
		delete(f.fail, op)
		return err
	}
	return nil
}

func (f *Fake) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetItem"); err != nil {
		return nil, err
	}
	t, k, err := f.locate(in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	it, ok := t[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(it)}, nil
}

func (f *Fake) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutItem"); err != nil {
		return nil, err
	}
	op, err := f.planPut(in.TableName, in.Item, in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !op.ok {
		return nil, conditionalFailed()
	}
	op.apply()
	return &dyn.PutItemOutput{}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateItem"); err != nil {
		return nil, err
	}
	op, err := f.planUpdate(in.TableName, in.Key, aws.ToString(in.UpdateExpression), in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !op.ok {
		return nil, conditionalFailed()
	}
	op.apply()
	out := &dyn.UpdateItemOutput{}
	if in.ReturnValues != "" && in.ReturnValues != types.ReturnValueNone {
		out.Attributes = clone(op.next)
	}
	return out, nil
}

func (f *Fake) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteItem"); err != nil {
		return nil, err
	}
	op, err := f.planDelete(in.TableName, in.Key, in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !op.ok {
		return nil, conditionalFailed()
	}
	out := &dyn.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld && op.prev != nil {
		out.Attributes = clone(op.prev)
	}
	op.apply()
	return out, nil
}

func (f *Fake) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Query"); err != nil {
		return nil, err
	}
	if in.KeyConditionExpression == nil {
		return nil, validationError("KeyConditionExpression is required")
	}
	items, err := f.filter(in.TableName, *in.KeyConditionExpression, in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dyn.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

func (f *Fake) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Scan"); err != nil {
		return nil, err
	}
	items, err := f.filter(in.TableName, "", in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	return &dyn.ScanOutput{Items: items, Count: int32(len(items))}, nil
}

// TransactWriteItems checks every condition first and applies nothing unless all pass.
func (f *Fake) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("TransactWriteItems"); err != nil {
		return nil, err
	}
	if len(in.TransactItems) == 0 || len(in.TransactItems) > 100 {
		return nil, validationError("TransactItems must hold between 1 and 100 operations")
	}

	ops := make([]*plan, 0, len(in.TransactItems))
	seen := map[string]bool{}
	for _, ti := range in.TransactItems {
		var (
			op  *plan
			err error
		)
		switch {
		case ti.Put != nil:
			p := ti.Put
			op, err = f.planPut(p.TableName, p.Item, p.ConditionExpression, p.ExpressionAttributeNames, p.ExpressionAttributeValues)
		case ti.Update != nil:
			u := ti.Update
			op, err = f.planUpdate(u.TableName, u.Key, aws.ToString(u.UpdateExpression), u.ConditionExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
		case ti.Delete != nil:
			d := ti.Delete
			op, err = f.planDelete(d.TableName, d.Key, d.ConditionExpression, d.ExpressionAttributeNames, d.ExpressionAttributeValues)
		case ti.ConditionCheck != nil:
			c := ti.ConditionCheck
			op, err = f.planDelete(c.TableName, c.Key, c.ConditionExpression, c.ExpressionAttributeNames, c.ExpressionAttributeValues)
			if op != nil {
				op.apply = func() {}
			}
		default:
			err = validationError("empty TransactWriteItem")
		}
		if err != nil {
			return nil, err
		}
		id := aws.ToString(op.table) + "/" + op.key
		if seen[id] {
			return nil, validationError("Transaction request cannot include multiple operations on one item")
		}
		seen[id] = true
		ops = append(ops, op)
	}

	reasons := make([]types.CancellationReason, len(ops))
	canceled := false
	for i, op := range ops {
		if op.ok {
			reasons[i] = types.CancellationReason{Code: aws.String("None")}
			continue
		}
		canceled = true
		reasons[i] = types.CancellationReason{
			Code:    aws.String("ConditionalCheckFailed"),
			Message: aws.String("The conditional request failed"),
		}
	}
	if canceled {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}
	for _, op := range ops {
		op.apply()
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

// plan is a validated single-item write that has not been applied yet.
type plan struct {
	table *string
	key   string
	ok    bool
	prev  item
	next  item
	apply func()
}

func (f *Fake) planPut(table *string, it item, cond *string, names map[string]string, values map[string]types.AttributeValue) (*plan, error) {
	t, err := f.table(table)
	if err != nil {
		return nil, err
	}
	k, err := f.keyOf(aws.ToString(table), it)
	if err != nil {
		return nil, err
	}
	prev := t[k]
	ok, err := evalCondition(aws.ToString(cond), prev, names, values)
	if err != nil {
		return nil, err
	}
	next := clone(it)
	return &plan{table: table, key: k, ok: ok, prev: prev, next: next, apply: func() { t[k] = next }}, nil
}

func (f *Fake) planUpdate(table *string, key item, update string, cond *string, names map[string]string, values map[string]types.AttributeValue) (*plan, error) {
	t, k, err := f.locate(table, key)
	if err != nil {
		return nil, err
	}
	prev := t[k]
	ok, err := evalCondition(aws.ToString(cond), prev, names, values)
	if err != nil {
		return nil, err
	}
	next := clone(prev)
	if next == nil {
		next = clone(key)
	}
	if err := applyUpdate(update, next, names, values); err != nil {
		return nil, err
	}
	return &plan{table: table, key: k, ok: ok, prev: prev, next: next, apply: func() { t[k] = next }}, nil
}

func (f *Fake) planDelete(table *string, key item, cond *string, names map[string]string, values map[string]types.AttributeValue) (*plan, error) {
	t, k, err := f.locate(table, key)
	if err != nil {
		return nil, err
	}
	prev := t[k]
	ok, err := evalCondition(aws.ToString(cond), prev, names, values)
	if err != nil {
		return nil, err
	}
	return &plan{table: table, key: k, ok: ok, prev: prev, apply: func() { delete(t, k) }}, nil
}

func (f *Fake) filter(table *string, keyCond string, filterExpr *string, names map[string]string, values map[string]types.AttributeValue) ([]item, error) {
	t, err := f.table(table)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []item{}
	for _, k := range keys {
		it := t[k]
		if keyCond != "" {
			ok, err := evalCondition(keyCond, it, names, values)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		ok, err := evalCondition(aws.ToString(filterExpr), it, names, values)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, clone(it))
		}
	}
	return out, nil
}

func (f *Fake) table(name *string) (map[string]item, error) {
	t, ok := f.tables[aws.ToString(name)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + aws.ToString(name))}
	}
	return t, nil
}

func (f *Fake) locate(name *string, key item) (map[string]item, string, error) {
	t, err := f.table(name)
	if err != nil {
		return nil, "", err
	}
	k, err := f.keyOf(aws.ToString(name), key)
	if err != nil {
		return nil, "", err
	}
	return t, k, nil
}

func (f *Fake) keyOf(table string, it item) (string, error) {
	pk, ok := f.keys[table]
	if !ok {
		return "", fmt.Errorf("dynamotest: unknown table %q", table)
	}
	s, ok := it[pk].(*types.AttributeValueMemberS)
	if !ok {
		return "", validationError(fmt.Sprintf("missing string key attribute %q", pk))
	}
	return s.Value, nil
}

var comparison = regexp.MustCompile(`^([#\w.]+)\s*(<>|>=|<=|=|>|<)\s*(:\w+)$`)

func evalCondition(expr string, it item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	for _, alt := range strings.Split(expr, " OR ") {
		all := true
		for _, term := range strings.Split(alt, " AND ") {
			ok, err := evalTerm(strings.Trim(strings.TrimSpace(term), "()"), it, names, values)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func evalTerm(term string, it item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	for _, fn := range []string{"attribute_not_exists", "attribute_exists"} {
		if strings.HasPrefix(term, fn) {
			arg := strings.TrimSpace(strings.Trim(strings.TrimSpace(strings.TrimPrefix(term, fn)), "()"))
			_, present := it[resolve(arg, names)]
			if fn == "attribute_exists" {
				return present, nil
			}
			return !present, nil
		}
	}

	m := comparison.FindStringSubmatch(term)
	if m == nil {
		return false, validationError("unsupported condition term: " + term)
	}
	want, ok := values[m[3]]
	if !ok {
		return false, validationError("missing expression value " + m[3])
	}
	got, ok := it[resolve(m[1], names)]
	if !ok {
		return false, nil
	}
	c, comparable, err := compare(got, want)
	if err != nil {
		return false, err
	}
	switch m[2] {
	case "=":
		return comparable && c == 0, nil
	case "<>":
		return !comparable || c != 0, nil
	case ">=":
		return comparable && c >= 0, nil
	case ">":
		return comparable && c > 0, nil
	case "<=":
		return comparable && c <= 0, nil
	default:
		return comparable && c < 0, nil
	}
}

func compare(a, b types.AttributeValue) (int, bool, error) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false, nil
		}
		return strings.Compare(av.Value, bv.Value), true, nil
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false, nil
		}
		x, err := strconv.ParseFloat(av.Value, 64)
		if err != nil {
			return 0, false, err
		}
		y, err := strconv.ParseFloat(bv.Value, 64)
		if err != nil {
			return 0, false, err
		}
		switch {
		case x < y:
			return -1, true, nil
		case x > y:
			return 1, true, nil
		}
		return 0, true, nil
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok {
			return 0, false, nil
		}
		if av.Value == bv.Value {
			return 0, true, nil
		}
		return 1, true, nil
	}
	return 0, false, validationError(fmt.Sprintf("unsupported comparison operand %T", a))
}

var clauseKeyword = regexp.MustCompile(`\b(SET|ADD|REMOVE)\b`)

func applyUpdate(expr string, it item, names map[string]string, values map[string]types.AttributeValue) error {
	locs := clauseKeyword.FindAllStringIndex(expr, -1)
	if len(locs) == 0 {
		return validationError("unsupported update expression: " + expr)
	}
	for i, loc := range locs {
		end := len(expr)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		keyword := expr[loc[0]:loc[1]]
		for _, action := range strings.Split(expr[loc[1]:end], ",") {
			action = strings.TrimSpace(action)
			if action == "" {
				continue
			}
			if err := applyAction(keyword, action, it, names, values); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyAction(keyword, action string, it item, names map[string]string, values map[string]types.AttributeValue) error {
	switch keyword {
	case "SET":
		parts := strings.SplitN(action, "=", 2)
		if len(parts) != 2 {
			return validationError("bad SET action: " + action)
		}
		v, ok := values[strings.TrimSpace(parts[1])]
		if !ok {
			return validationError("unsupported SET value: " + action)
		}
		it[resolve(strings.TrimSpace(parts[0]), names)] = v
	case "ADD":
		fields := strings.Fields(action)
		if len(fields) != 2 {
			return validationError("bad ADD action: " + action)
		}
		delta, ok := values[fields[1]].(*types.AttributeValueMemberN)
		if !ok {
			return validationError("ADD needs a number value: " + action)
		}
		path := resolve(fields[0], names)
		cur := 0.0
		if n, ok := it[path].(*types.AttributeValueMemberN); ok {
			x, err := strconv.ParseFloat(n.Value, 64)
			if err != nil {
				return err
			}
			cur = x
		}
		d, err := strconv.ParseFloat(delta.Value, 64)
		if err != nil {
			return err
		}
		it[path] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(cur+d, 'f', -1, 64)}
	case "REMOVE":
		delete(it, resolve(action, names))
	}
	return nil
}

func resolve(path string, names map[string]string) string {
	if strings.HasPrefix(path, "#") {
		if n, ok := names[path]; ok {
			return n
		}
	}
	return path
}

func clone(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func conditionalFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func validationError(msg string) error {
	return &smithy.GenericAPIError{Code: "ValidationException", Message: msg}
}

// IsValidation reports whether err is a ValidationException raised by the fake.
func IsValidation(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException"
}

// Canceled builds a TransactionCanceledException with one cancellation reason
// per operation, in order. Use "None" for operations that did not fail.
func Canceled(codes ...string) error {
	reasons := make([]types.CancellationReason, len(codes))
	for i, c := range codes {
		reasons[i] = types.CancellationReason{Code: aws.String(c)}
	}
	return &types.TransactionCanceledException{
		Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
		CancellationReasons: reasons,
	}
}
