package explain

import "fmt"

// messages holds one canned sentence per rule. Policy facts take their
// arguments in the order the encoder records them.
var messages = map[string]string{
	"taints":               "This line was annotated with the given label.",
	"hasLabelLevel":        "Label %s is at level %s.",
	"isFunctionAnnotation": "Label %s is %sa function annotation.",
	"hasGuardOperation":    "CDF %s has guard operation %s.",
	"hasEnclaveLevel":      "Enclave %s is at level %s.",
	"cdfForRemoteLevel":    "Label %s has CDF %s at remote level %s.",
	"hasRettaints":         "CDF %s %s %s as a rettaint.",
	"hasARCtaints":         "CDF %s %s %s as an ARCtaint.",
	"hasArgtaints":         "CDF %s %s %s as an argtaint of argument %s.",
	"isPinned":             "Class with node ID=%s %s to receive the universal label.",

	"NodeHasEnclave":            "Node must have a non-null enclave.",
	"NodeEnclaveIsFunEnclave":   "Node must have the same enclave as its containing function.",
	"NodeEnclaveIsClassEnclave": "Node must have the same enclave as its containing class.",
	"AnnotationHasNoEnclave":    "Annotation nodes carry no code and sit in the null enclave.",
	"NodeLevelAtEnclaveLevel":   "The level of the node's taint must match the level of the node's enclave.",

	"FnAnnotationForFnOnly":               "Function taints can only be applied to functions.",
	"FnAnnotationByUserOnly":              "Function annotations can only be made by the developer.",
	"annotationOnFunctionIsFunAnnotation": "If the developer annotates this function, it must be with a function annotation.",
	"annotationOnClassIsNodeAnnotation":   "If the developer annotates this class, it must be with a node annotation.",
	"annotationOnFieldIsNodeAnnotation":   "If the developer annotates this field, it must be with a node annotation.",

	"UnannotatedFunContentTaintMatch":       "This node is in an un-annotated function and must share its taint with the function.",
	"UnannotatedClassTaintsMatch":           "This node is in an un-annotated class and must share its taint with the class.",
	"noAnnotatedDataForUnannotatedClass":    "This node is in an un-annotated class and may not be annotated.",
	"unannotatedConstructorGetsClassTaint":  "This constructor is un-annotated and must receive the class taint.",
	"unannotatedDestructorGetsClassTaint":   "This destructor is un-annotated and must receive the class taint.",
	"unannotatedMethodGetsClassTaint":       "This method is un-annotated and must receive the class taint.",
	"AnnotatedFunContentCoercible":          "This node's taint must be in the ARCtaints of its function.",
	"annotatedConstructorReturnsClassTaint": "This constructor is annotated, so its rettaint must be the class taint.",
	"definitionForALL":                      "This node may only take the universal label if it is in an unpinned class.",
	"inheritTaint":                          "These classes are connected by an inheritance relationship and must share the same taint.",

	"FunctionPtrSinglyTainted":     "This function has its address taken and may not have a function annotation.",
	"IndirectCalleeSinglyTainted":  "This function is called through a pointer and may not have a function annotation.",
	"NonCallRetControlEnclaveSafe": "This is an enclave-safe control/structural edge; it must not be cross-domain.",
	"EnclaveSafeDataEdges":         "This is an enclave-safe data edge; it must not be cross-domain.",
	"XDCallBlest":                  "If this call is cross-domain, the callee must be annotated.",
	"XDCallAllowed":                "If this call is cross-domain, it must be allowed by the callee CDF.",
	"XDReturnAllowed":              "If this return is cross-domain, it must be allowed by the caller CDF.",
	"XDReturnDataAllowed":          "If this data return is cross-domain, it must be allowed by the caller CDF.",
	"XDArgPassAllowed":             "If this argument crosses domains, the caller's taint must be allowed towards the callee's level.",
	"XDGlobalDataAllowed":          "If this use of a global crosses domains, the global's taint must be allowed towards the user's level.",
	"XDPointsToAllowed":            "If this points-to edge is cross-domain, it must be allowed by the callee CDF.",
	"IndirectCallSameEnclave":      "This call goes through a pointer and must stay inside one enclave.",

	"intraFunPointsToTaintsMatch":          "These nodes have a points-to dependency and must share the same taint.",
	"interFunPointsToTaintsMatch":          "These nodes have a points-to dependency and must share the same taint.",
	"externExternDataEdgeTaintsMatch":      "These two globals have a data dependency and must share the same taint.",
	"externDataEdgeTaintsMatch":            "This is a data dependency from a global to a node in a function. The taints must match.",
	"externDataEdgeInArctaints":            "This is a data dependency from a global to an annotated function; the global's taint must be in the function's ARCtaints.",
	"retEdgeFromUnannotatedTaintsMatch":    "This return is from an un-annotated function; the taint of the return data must match the taint at the callsite.",
	"returnNodeInRettaints":                "This return is from an annotated function; the taint of the callsite must be in the callee's rettaints.",
	"argumentToUnannotatedTaintsMatch":     "This call is to an un-annotated function; the taints of each argument must match the callee's taint.",
	"argumentInArgtaints":                  "This call is to an annotated function; the taints of each argument must match the callee's argtaints.",
	"argPassOutFromUnannotatedTaintsMatch": "This parameter of an un-annotated function is passed out; its taint must match the receiving node.",
	"argPassOutInArgtaints":                "This parameter of an annotated function is passed out; the receiving node's taint must be in the callee's argtaints.",
}

// Message renders the canned sentence for rule. Unknown rules fall back to
// the rule name so nothing in a core is ever silently dropped.
func Message(rule string, args ...string) string {
	msg, ok := messages[rule]
	if !ok {
		return "Rule " + rule + "."
	}
	if len(args) == 0 {
		return msg
	}
	vals := make([]any, len(args))
	for i, a := range args {
		vals[i] = a
	}
	return fmt.Sprintf(msg, vals...)
}

// Known reports whether rule has a canned message.
func Known(rule string) bool {
	_, ok := messages[rule]
	return ok
}
