// Package nlu provides core.Understander implementations.
//
// RuleUnderstander is deterministic: keyword patterns select the intent and
// regular expressions pull lesson facts out of the text. ModelUnderstander
// asks a language model for a JSON understanding and falls back to the rules
// whenever the model fails or answers with something unusable.
package nlu
