// Package parser implements the wally parser.
//
// It is a Pratt (top-down operator precedence) parser: every token type has
// an optional prefix handler, an optional infix handler, and an infix
// precedence. parsePrecedence drives expression parsing by running the
// prefix handler of the token it just consumed, then folding in infix
// handlers while the next token binds at least as tightly as requested.
//
// The parser also performs all the syntax desugaring the language needs:
// compound assignment (`x += e` arrives from the scanner pre-split into
// `=` and `+`), the postfix `++`/`--` operators, and missing `for`
// conditions, which are synthesized as a literal `true`. What comes out is
// a plain AST with none of those forms left.
//
// On a syntax error the parser reports, enters panic mode, and skips
// tokens until something that looks like a statement boundary; errors
// inside one panic window are suppressed so a single mistake does not
// cascade.
package parser

import (
	"errors"
	"strconv"
	"strings"

	"github.com/wally-lang/wally/pkg/ast"
	"github.com/wally-lang/wally/pkg/scanner"
)

// Precedence levels from weakest to strongest binding.
type Precedence int

const (
	PrecNone       Precedence = iota
	PrecAssignment            // =
	PrecTernary               // ?:
	PrecOr                    // or ||
	PrecAnd                   // and &&
	PrecEquality              // == !=
	PrecComparison            // < > <= >=
	PrecTerm                  // + -
	PrecFactor                // * /
	PrecUnary                 // ! -
	PrecCall                  // . ()
	PrecSubscript             // []
	PrecIncrDecr              // ++ --
	PrecPrimary
)

type prefixFn func(p *Parser, canAssign bool) ast.Expr

type infixFn func(p *Parser, left ast.Expr, canAssign bool) ast.Expr

type parseRule struct {
	prefix     prefixFn
	infix      infixFn
	precedence Precedence
}

var rules map[scanner.TokenType]parseRule

func init() {
	rules = map[scanner.TokenType]parseRule{
		scanner.TokenLeftParen:    {grouping, call, PrecCall},
		scanner.TokenLeftBracket:  {list, subscript, PrecSubscript},
		scanner.TokenMinus:        {unary, binary, PrecTerm},
		scanner.TokenPlus:         {nil, binary, PrecTerm},
		scanner.TokenSlash:        {nil, binary, PrecFactor},
		scanner.TokenStar:         {nil, binary, PrecFactor},
		scanner.TokenBang:         {unary, nil, PrecNone},
		scanner.TokenBangEqual:    {nil, binary, PrecEquality},
		scanner.TokenEqualEqual:   {nil, binary, PrecEquality},
		scanner.TokenGreater:      {nil, binary, PrecComparison},
		scanner.TokenGreaterEqual: {nil, binary, PrecComparison},
		scanner.TokenLess:         {nil, binary, PrecComparison},
		scanner.TokenLessEqual:    {nil, binary, PrecComparison},
		scanner.TokenIdentifier:   {variable, nil, PrecNone},
		scanner.TokenString:       {stringLiteral, nil, PrecNone},
		scanner.TokenNumber:       {number, nil, PrecNone},
		scanner.TokenAnd:          {nil, logical, PrecAnd},
		scanner.TokenOr:           {nil, logical, PrecOr},
		scanner.TokenQuestionMark: {nil, ternary, PrecTernary},
		scanner.TokenFalse:        {literal, nil, PrecNone},
		scanner.TokenTrue:         {literal, nil, PrecNone},
		scanner.TokenNull:         {literal, nil, PrecNone},
		scanner.TokenDot:          {nil, dot, PrecCall},
		scanner.TokenThis:         {this, nil, PrecNone},
		scanner.TokenBase:         {base, nil, PrecNone},
		scanner.TokenPlusPlus:     {nil, increment, PrecIncrDecr},
		scanner.TokenMinusMinus:   {nil, decrement, PrecIncrDecr},
	}
}

func getRule(tt scanner.TokenType) parseRule {
	return rules[tt]
}

// Parser holds the parsing state for one source text.
type Parser struct {
	scanner  *scanner.Scanner
	current  scanner.Token
	previous scanner.Token

	hadError  bool
	panicMode bool
	errors    []string
}

// New creates a parser for the given source text.
func New(source string) *Parser {
	return &Parser{
		scanner: scanner.New(source),
	}
}

// Parse parses the whole input and returns the statement list. On any
// syntax error the (possibly partial) list is returned together with an
// error holding every accumulated message.
func (p *Parser) Parse() ([]ast.Stmt, error) {
	p.advance()

	var statements []ast.Stmt
	for !p.match(scanner.TokenEOF) {
		if stmt := p.declaration(); stmt != nil {
			statements = append(statements, stmt)
		}
	}

	if p.hadError {
		return statements, errors.New(strings.Join(p.errors, "\n"))
	}
	return statements, nil
}

// ------------ ERRORS ------------

func (p *Parser) errorAt(token scanner.Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true

	var b strings.Builder
	b.WriteString("[line ")
	b.WriteString(strconv.Itoa(token.Line))
	b.WriteString("] Parse Error")

	switch token.Type {
	case scanner.TokenEOF:
		b.WriteString(" at end")
	case scanner.TokenError:
		// Nothing.
	default:
		b.WriteString(" at '")
		b.WriteString(token.Lexeme)
		b.WriteString("'")
	}

	b.WriteString(": ")
	b.WriteString(message)
	p.errors = append(p.errors, b.String())
}

func (p *Parser) errorAtCurrent(message string) {
	p.errorAt(p.current, message)
}

func (p *Parser) error(message string) {
	p.errorAt(p.previous, message)
}

// synchronize skips tokens until a statement boundary so one syntax error
// does not drown everything after it.
func (p *Parser) synchronize() {
	p.panicMode = false

	for p.current.Type != scanner.TokenEOF {
		if p.previous.Type == scanner.TokenSemicolon {
			return
		}

		switch p.current.Type {
		case scanner.TokenClass, scanner.TokenFunction, scanner.TokenVar,
			scanner.TokenFor, scanner.TokenIf, scanner.TokenWhile,
			scanner.TokenReturn:
			return
		}

		p.advance()
	}
}

// ------------ TOKEN HANDLING ------------

func (p *Parser) advance() {
	p.previous = p.current

	for {
		p.current = p.scanner.NextToken()
		if p.current.Type != scanner.TokenError {
			break
		}
		p.errorAtCurrent(p.current.Lexeme)
	}
}

func (p *Parser) consume(tt scanner.TokenType, message string) {
	if p.current.Type == tt {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

func (p *Parser) check(tt scanner.TokenType) bool {
	return p.current.Type == tt
}

func (p *Parser) match(tt scanner.TokenType) bool {
	if !p.check(tt) {
		return false
	}
	p.advance()
	return true
}

// matchMultiple consumes and returns the first matching token type, or
// TokenNone when none of them match.
func (p *Parser) matchMultiple(types ...scanner.TokenType) scanner.TokenType {
	for _, tt := range types {
		if p.match(tt) {
			return tt
		}
	}
	return scanner.TokenNone
}

// ------------ EXPRESSIONS ------------

func (p *Parser) parsePrecedence(precedence Precedence) ast.Expr {
	p.advance()

	prefix := getRule(p.previous.Type).prefix
	if prefix == nil {
		p.error("Expect expression.")
		return nil
	}

	canAssign := precedence <= PrecAssignment
	expr := prefix(p, canAssign)

	for precedence <= getRule(p.current.Type).precedence {
		p.advance()
		expr = getRule(p.previous.Type).infix(p, expr, canAssign)
	}

	if canAssign && p.match(scanner.TokenEqual) {
		p.error("Invalid assignment target.")
	}

	return expr
}

func (p *Parser) expression() ast.Expr {
	return p.parsePrecedence(PrecAssignment)
}

func grouping(p *Parser, _ bool) ast.Expr {
	expr := p.expression()
	p.consume(scanner.TokenRightParen, "Expect ')' after expression.")
	return expr
}

func unary(p *Parser, _ bool) ast.Expr {
	op := p.previous.Type
	line := p.previous.Line
	target := p.parsePrecedence(PrecUnary)
	return &ast.Unary{Ln: line, Op: op, Target: target}
}

func binary(p *Parser, left ast.Expr, _ bool) ast.Expr {
	op := p.previous.Type
	line := p.previous.Line
	rule := getRule(op)
	// One level higher makes binary operators left associative.
	right := p.parsePrecedence(rule.precedence + 1)
	return &ast.Binary{Ln: line, Left: left, Op: op, Right: right}
}

func logical(p *Parser, left ast.Expr, _ bool) ast.Expr {
	op := p.previous.Type
	line := p.previous.Line
	rule := getRule(op)
	right := p.parsePrecedence(rule.precedence + 1)
	return &ast.Logical{Ln: line, Left: left, Op: op, Right: right}
}

func ternary(p *Parser, condition ast.Expr, _ bool) ast.Expr {
	line := p.previous.Line
	thenBranch := p.parsePrecedence(PrecTernary)
	p.consume(scanner.TokenColon, "Expect ':' after first ternary branch.")
	// Parsing the else branch at assignment precedence makes ?: right
	// associative.
	elseBranch := p.parsePrecedence(PrecAssignment)
	return &ast.Ternary{Ln: line, Condition: condition, ThenBranch: thenBranch, ElseBranch: elseBranch}
}

func literal(p *Parser, _ bool) ast.Expr {
	line := p.previous.Line
	switch p.previous.Type {
	case scanner.TokenFalse:
		return &ast.BoolLiteral{Ln: line, Value: false}
	case scanner.TokenTrue:
		return &ast.BoolLiteral{Ln: line, Value: true}
	case scanner.TokenNull:
		return &ast.NullLiteral{Ln: line}
	default:
		return nil // Unreachable.
	}
}

func number(p *Parser, _ bool) ast.Expr {
	value, _ := strconv.ParseFloat(p.previous.Lexeme, 64)
	return &ast.NumberLiteral{Ln: p.previous.Line, Value: value}
}

func stringLiteral(p *Parser, _ bool) ast.Expr {
	lexeme := p.previous.Lexeme
	// Trim the surrounding quotes, then translate escape sequences.
	raw := lexeme[1 : len(lexeme)-1]
	return &ast.StringLiteral{Ln: p.previous.Line, Value: translateEscapes(raw)}
}

// translateEscapes rewrites backslash escapes. Unknown escapes keep the
// escaped character.
func translateEscapes(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}

		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'f':
			b.WriteByte('\f')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 't':
			b.WriteByte('\t')
		case 'v':
			b.WriteByte('\v')
		case '"':
			b.WriteByte('"')
		default:
			b.WriteByte(s[i])
		}
	}

	return b.String()
}

func variable(p *Parser, canAssign bool) ast.Expr {
	name := p.previous.Lexeme
	line := p.previous.Line

	if canAssign && p.match(scanner.TokenEqual) {
		// The scanner splits `x += e` into `=` followed by `+`, so a
		// binary operator right after `=` means compound assignment.
		op := p.matchMultiple(scanner.TokenPlus, scanner.TokenMinusEq,
			scanner.TokenStar, scanner.TokenSlash)

		if op == scanner.TokenNone {
			return &ast.Assign{Ln: line, Name: name, Value: p.expression()}
		}

		return &ast.Assign{
			Ln:   line,
			Name: name,
			Value: &ast.Binary{
				Ln:    line,
				Left:  &ast.VarRef{Ln: line, Name: name},
				Op:    op,
				Right: p.expression(),
			},
		}
	}

	return &ast.VarRef{Ln: line, Name: name}
}

func this(p *Parser, _ bool) ast.Expr {
	return &ast.VarRef{Ln: p.previous.Line, Name: "this"}
}

func base(p *Parser, _ bool) ast.Expr {
	line := p.previous.Line
	p.consume(scanner.TokenDot, "Expect '.' after 'base'.")
	p.consume(scanner.TokenIdentifier, "Expect parent method name after 'base'.")
	return &ast.Base{Ln: line, Method: p.previous.Lexeme}
}

func dot(p *Parser, instance ast.Expr, canAssign bool) ast.Expr {
	p.consume(scanner.TokenIdentifier, "Expect property name after '.'.")
	name := p.previous.Lexeme
	line := p.previous.Line

	if canAssign && p.match(scanner.TokenEqual) {
		op := p.matchMultiple(scanner.TokenPlus, scanner.TokenMinusEq,
			scanner.TokenStar, scanner.TokenSlash)

		if op == scanner.TokenNone {
			return &ast.Dot{Ln: line, Instance: instance, Field: name, Value: p.expression()}
		}

		// obj.f += e computes obj.f twice; accessors are side-effect
		// free so this is harmless.
		get := &ast.Dot{Ln: line, Instance: instance, Field: name}
		newValue := &ast.Binary{Ln: line, Left: get, Op: op, Right: p.expression()}
		return &ast.Dot{Ln: line, Instance: instance, Field: name, Value: newValue}
	}

	if p.match(scanner.TokenLeftParen) {
		args := p.argumentList()
		return &ast.Dot{Ln: line, Instance: instance, Field: name, IsCall: true, Args: args}
	}

	return &ast.Dot{Ln: line, Instance: instance, Field: name}
}

func call(p *Parser, callee ast.Expr, _ bool) ast.Expr {
	line := p.previous.Line
	args := p.argumentList()
	return &ast.Call{Ln: line, Callee: callee, Args: args}
}

func (p *Parser) argumentList() []ast.Expr {
	var args []ast.Expr

	if !p.check(scanner.TokenRightParen) {
		for {
			args = append(args, p.expression())
			if len(args) > 255 {
				p.error("Cannot have more than 255 arguments in a call.")
				break
			}
			if !p.match(scanner.TokenComma) {
				break
			}
		}
	}

	p.consume(scanner.TokenRightParen, "Expect ')' after arguments.")
	return args
}

func list(p *Parser, _ bool) ast.Expr {
	line := p.previous.Line
	var items []ast.Expr

	if !p.check(scanner.TokenRightBracket) {
		for {
			if p.check(scanner.TokenRightBracket) {
				// Trailing comma.
				break
			}

			items = append(items, p.parsePrecedence(PrecOr))
			if len(items) > 256 {
				p.error("Cannot have more than 256 items in a list literal.")
			}

			if !p.match(scanner.TokenComma) {
				break
			}
		}
	}

	p.consume(scanner.TokenRightBracket, "Expect ']' after list literal.")
	return &ast.ListLiteral{Ln: line, Items: items}
}

func subscript(p *Parser, target ast.Expr, canAssign bool) ast.Expr {
	line := p.previous.Line
	index := p.expression()
	p.consume(scanner.TokenRightBracket, "Expect ']' after subscript.")

	if canAssign && p.match(scanner.TokenEqual) {
		op := p.matchMultiple(scanner.TokenPlus, scanner.TokenMinusEq,
			scanner.TokenStar, scanner.TokenSlash)

		if op == scanner.TokenNone {
			return &ast.Subscript{Ln: line, Target: target, Index: index, Value: p.expression()}
		}

		get := &ast.Subscript{Ln: line, Target: target, Index: index}
		newValue := &ast.Binary{Ln: line, Left: get, Op: op, Right: p.expression()}
		return &ast.Subscript{Ln: line, Target: target, Index: index, Value: newValue}
	}

	return &ast.Subscript{Ln: line, Target: target, Index: index}
}

func increment(p *Parser, target ast.Expr, _ bool) ast.Expr {
	return p.incrDecr(target, scanner.TokenPlus)
}

func decrement(p *Parser, target ast.Expr, _ bool) ast.Expr {
	return p.incrDecr(target, scanner.TokenMinus)
}

// incrDecr desugars `x++` into `x = x + 1` and `obj.f++` into
// `obj.f = obj.f + 1`, and the mirror image for `--`.
func (p *Parser) incrDecr(target ast.Expr, op scanner.TokenType) ast.Expr {
	line := p.previous.Line
	one := &ast.NumberLiteral{Ln: line, Value: 1}

	switch target := target.(type) {
	case *ast.VarRef:
		return &ast.Assign{
			Ln:   line,
			Name: target.Name,
			Value: &ast.Binary{
				Ln:    line,
				Left:  &ast.VarRef{Ln: line, Name: target.Name},
				Op:    op,
				Right: one,
			},
		}

	case *ast.Dot:
		newValue := &ast.Binary{Ln: line, Left: target, Op: op, Right: one}
		return &ast.Dot{Ln: line, Instance: target.Instance, Field: target.Field, Value: newValue}

	default:
		p.error("Invalid increment/decrement target.")
		return target
	}
}

// ------------ STATEMENTS ------------

func (p *Parser) declaration() ast.Stmt {
	var stmt ast.Stmt

	switch {
	case p.match(scanner.TokenVar):
		stmt = p.varDeclaration()
	case p.match(scanner.TokenFunction):
		stmt = p.functionDeclaration(false)
	case p.match(scanner.TokenClass):
		stmt = p.classDeclaration()
	default:
		stmt = p.statement()
	}

	if p.panicMode {
		p.synchronize()
	}
	return stmt
}

func (p *Parser) statement() ast.Stmt {
	switch {
	case p.match(scanner.TokenIf):
		return p.ifStatement()
	case p.match(scanner.TokenWhile):
		return p.whileStatement()
	case p.match(scanner.TokenFor):
		return p.forStatement()
	case p.match(scanner.TokenLeftBrace):
		return p.block()
	case p.match(scanner.TokenBreak):
		return p.breakStatement()
	case p.match(scanner.TokenContinue):
		return p.continueStatement()
	case p.match(scanner.TokenSwitch):
		return p.switchStatement()
	case p.match(scanner.TokenReturn):
		return p.returnStatement()
	default:
		return p.expressionStatement()
	}
}

func (p *Parser) expressionStatement() ast.Stmt {
	line := p.current.Line
	expr := p.expression()
	p.consume(scanner.TokenSemicolon, "Expect ';' after expression.")
	return &ast.ExpressionStmt{Ln: line, Expr: expr}
}

func (p *Parser) block() ast.Stmt {
	line := p.previous.Line
	var statements []ast.Stmt

	for !p.match(scanner.TokenRightBrace) {
		if p.check(scanner.TokenEOF) {
			p.errorAtCurrent("Expect '}' after block.")
			break
		}
		if stmt := p.declaration(); stmt != nil {
			statements = append(statements, stmt)
		}
	}

	return &ast.Block{Ln: line, Statements: statements}
}

func (p *Parser) ifStatement() ast.Stmt {
	line := p.previous.Line

	p.consume(scanner.TokenLeftParen, "Expect '(' after 'if'.")
	condition := p.expression()
	p.consume(scanner.TokenRightParen, "Expect ')' after condition.")

	thenBranch := p.statement()
	var elseBranch ast.Stmt
	if p.match(scanner.TokenElse) {
		elseBranch = p.statement()
	}

	return &ast.If{Ln: line, Condition: condition, ThenBranch: thenBranch, ElseBranch: elseBranch}
}

func (p *Parser) whileStatement() ast.Stmt {
	line := p.previous.Line

	p.consume(scanner.TokenLeftParen, "Expect '(' after 'while'.")
	condition := p.expression()
	p.consume(scanner.TokenRightParen, "Expect ')' after condition.")

	return &ast.While{Ln: line, Condition: condition, Body: p.statement()}
}

func (p *Parser) forStatement() ast.Stmt {
	line := p.previous.Line
	p.consume(scanner.TokenLeftParen, "Expect '(' after 'for'.")

	// Initializer clause.
	var init ast.Stmt
	switch {
	case p.match(scanner.TokenSemicolon):
		// No initializer.
	case p.match(scanner.TokenVar):
		init = p.varDeclaration()
	default:
		init = p.expressionStatement()
	}

	// A missing condition means an infinite loop: synthesize `true`.
	var condition ast.Expr
	if p.match(scanner.TokenSemicolon) {
		condition = &ast.BoolLiteral{Ln: line, Value: true}
	} else {
		condition = p.expression()
		p.consume(scanner.TokenSemicolon, "Expect ';' after loop condition.")
	}

	// Increment clause.
	var increment ast.Expr
	if !p.match(scanner.TokenRightParen) {
		increment = p.expression()
		p.consume(scanner.TokenRightParen, "Expect ')' after for clauses.")
	}

	return &ast.For{Ln: line, Init: init, Condition: condition, Increment: increment, Body: p.statement()}
}

func (p *Parser) switchStatement() ast.Stmt {
	line := p.previous.Line

	p.consume(scanner.TokenLeftParen, "Expect '(' after 'switch'.")
	value := p.expression()
	p.consume(scanner.TokenRightParen, "Expect ')' after condition.")
	p.consume(scanner.TokenLeftBrace, "Expect '{' after ')'.")

	var caseConds []ast.Expr
	var caseBodies []ast.Stmt
	var defaultCase ast.Stmt

	for {
		if p.match(scanner.TokenCase) {
			caseConds = append(caseConds, p.expression())
			p.consume(scanner.TokenColon, "Expect ':' after expression.")
			caseBodies = append(caseBodies, p.statement())
		} else if p.match(scanner.TokenDefault) {
			p.consume(scanner.TokenColon, "Expect ':' after 'default'.")
			defaultCase = p.statement()
		} else {
			break
		}
	}

	p.consume(scanner.TokenRightBrace, "Expect '}' at the end of switch statement.")

	return &ast.Switch{Ln: line, Value: value, CaseConds: caseConds, CaseBodies: caseBodies, Default: defaultCase}
}

func (p *Parser) breakStatement() ast.Stmt {
	line := p.previous.Line
	p.consume(scanner.TokenSemicolon, "Expect ';' after 'break'.")
	return &ast.Break{Ln: line}
}

func (p *Parser) continueStatement() ast.Stmt {
	line := p.previous.Line
	p.consume(scanner.TokenSemicolon, "Expect ';' after 'continue'.")
	return &ast.Continue{Ln: line}
}

func (p *Parser) returnStatement() ast.Stmt {
	line := p.previous.Line

	var value ast.Expr
	if !p.match(scanner.TokenSemicolon) {
		value = p.expression()
		p.consume(scanner.TokenSemicolon, "Expect ';' after return value.")
	}

	return &ast.Return{Ln: line, Value: value}
}

func (p *Parser) varDeclaration() ast.Stmt {
	line := p.previous.Line
	name := p.variableName("Expect variable name after 'var'.")

	var initializer ast.Expr
	if p.match(scanner.TokenEqual) {
		initializer = p.expression()
	}

	p.consume(scanner.TokenSemicolon, "Expect ';' after variable declaration.")
	return &ast.VarDecl{Ln: line, Name: name, Initializer: initializer}
}

func (p *Parser) functionDeclaration(isMethod bool) *ast.FunctionDecl {
	line := p.previous.Line

	kind := "function"
	if isMethod {
		kind = "method"
	}

	name := p.variableName("Expect " + kind + " name.")
	p.consume(scanner.TokenLeftParen, "Expect '(' after "+kind+" name.")

	var params []string
	if !p.match(scanner.TokenRightParen) {
		for {
			params = append(params, p.variableName("Expect parameter name."))
			if len(params) > 255 {
				p.error("Cannot have more than 255 parameters.")
			}

			if p.match(scanner.TokenRightParen) {
				break
			}
			p.consume(scanner.TokenComma, "Expect ',' after parameter in "+kind+".")
			if p.check(scanner.TokenEOF) {
				break
			}
		}
	}

	p.consume(scanner.TokenLeftBrace, "Expect '{' at the start of "+kind+" body.")

	var body []ast.Stmt
	for !p.match(scanner.TokenRightBrace) {
		if p.check(scanner.TokenEOF) {
			p.errorAtCurrent("Expect '}' at the end of " + kind + " body.")
			break
		}
		if stmt := p.declaration(); stmt != nil {
			body = append(body, stmt)
		}
	}

	return &ast.FunctionDecl{Ln: line, Name: name, Params: params, Body: body}
}

func (p *Parser) classDeclaration() ast.Stmt {
	line := p.previous.Line
	name := p.variableName("Expect class name.")

	parent := ""
	if p.match(scanner.TokenColon) {
		p.consume(scanner.TokenIdentifier, "Expect parent name.")
		parent = p.previous.Lexeme

		if parent == name {
			p.error("A class can't inherit from itself.")
		}
	}

	p.consume(scanner.TokenLeftBrace, "Expect '{' before class body.")

	var methods []*ast.FunctionDecl
	for !p.check(scanner.TokenRightBrace) && !p.check(scanner.TokenEOF) {
		methods = append(methods, p.functionDeclaration(true))
	}

	p.consume(scanner.TokenRightBrace, "Expect '}' after class body.")

	return &ast.ClassDecl{Ln: line, Name: name, Parent: parent, Methods: methods}
}

func (p *Parser) variableName(errorMessage string) string {
	p.consume(scanner.TokenIdentifier, errorMessage)
	return p.previous.Lexeme
}
